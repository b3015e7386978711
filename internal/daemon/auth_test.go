package daemon_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"harborsync/internal/daemon"
	"harborsync/internal/store"
)

func newAuth(t *testing.T) *daemon.Authenticator {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return daemon.NewAuthenticator(st)
}

func TestSetupAndLogin(t *testing.T) {
	auth := newAuth(t)

	configured, err := auth.Configured()
	require.NoError(t, err)
	require.False(t, configured)

	sess, err := auth.Setup("admin", "hunter2", false)
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)
	require.True(t, auth.Validate(sess.Token))

	configured, err = auth.Configured()
	require.NoError(t, err)
	require.True(t, configured)

	_, err = auth.Setup("admin", "again", false)
	require.ErrorIs(t, err, daemon.ErrAuthConfigured)

	login, err := auth.Login("admin", "hunter2", false)
	require.NoError(t, err)
	require.True(t, auth.Validate(login.Token))

	_, err = auth.Login("admin", "wrong", false)
	require.ErrorIs(t, err, daemon.ErrInvalidLogin)

	_, err = auth.Login("other", "hunter2", false)
	require.ErrorIs(t, err, daemon.ErrInvalidLogin)
}

func TestSetupRequiresUsernameAndPassword(t *testing.T) {
	auth := newAuth(t)

	_, err := auth.Setup("", "pw", false)
	require.ErrorIs(t, err, daemon.ErrMissingUserPass)

	_, err = auth.Setup("admin", "", false)
	require.ErrorIs(t, err, daemon.ErrMissingUserPass)
}

func TestLoginBeforeSetup(t *testing.T) {
	auth := newAuth(t)

	_, err := auth.Login("admin", "pw", false)
	require.ErrorIs(t, err, daemon.ErrNotConfigured)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	auth := newAuth(t)

	sess, err := auth.Setup("admin", "hunter2", false)
	require.NoError(t, err)

	auth.Logout(sess.Token)
	require.False(t, auth.Validate(sess.Token))
	require.Nil(t, auth.SessionExpiry(sess.Token))
}

func TestRememberMeExtendsSession(t *testing.T) {
	auth := newAuth(t)

	short, err := auth.Setup("admin", "hunter2", false)
	require.NoError(t, err)

	long, err := auth.Login("admin", "hunter2", true)
	require.NoError(t, err)
	require.True(t, long.ExpiresAt.After(short.ExpiresAt))
}

func TestValidateRejectsUnknownToken(t *testing.T) {
	auth := newAuth(t)
	require.False(t, auth.Validate(""))
	require.False(t, auth.Validate("not-a-token"))
}
