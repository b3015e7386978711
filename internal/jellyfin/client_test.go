package jellyfin_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"harborsync/internal/jellyfin"
)

func TestNewClientValidatesInput(t *testing.T) {
	_, err := jellyfin.NewClient("", "key")
	require.ErrorIs(t, err, jellyfin.ErrMissingServerURL)

	_, err = jellyfin.NewClient("http://media.local", "")
	require.ErrorIs(t, err, jellyfin.ErrMissingAPIKey)
}

func TestFetchTasksFiltersHiddenAndFallsBackToID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ScheduledTasks", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-Emby-Token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"Id": "id-1", "Key": "RefreshLibrary", "Name": "Scan Media Library"},
			{"Id": "id-2", "Key": "", "Name": "Keyless Task"},
			{"Id": "id-3", "Key": "Hidden", "Name": "Hidden Task", "IsHidden": true}
		]`))
	}))
	defer srv.Close()

	client, err := jellyfin.NewClient(srv.URL, "test-key")
	require.NoError(t, err)

	tasks, err := client.FetchTasks(false)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, "RefreshLibrary", tasks[0].Key)
	require.Equal(t, "id-2", tasks[1].Key)

	tasks, err = client.FetchTasks(true)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
}

func TestPollTaskMapsGoneTaskToCompleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client, err := jellyfin.NewClient(srv.URL, "test-key")
	require.NoError(t, err)

	st, err := client.PollTask("gone")
	require.NoError(t, err)
	require.Equal(t, jellyfin.TaskStatus{Percent: 100, State: "Completed"}, st)
}

func TestPollTaskDefaultsEmptyState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Id": "id-1", "CurrentProgressPercentage": 37.5}`))
	}))
	defer srv.Close()

	client, err := jellyfin.NewClient(srv.URL, "test-key")
	require.NoError(t, err)

	st, err := client.PollTask("id-1")
	require.NoError(t, err)
	require.Equal(t, 37.5, st.Percent)
	require.Equal(t, "Unknown", st.State)
}

func TestStartTaskRequiresNoContent(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := jellyfin.NewClient(srv.URL, "test-key")
	require.NoError(t, err)

	require.NoError(t, client.StartTask("id-1"))
	require.Equal(t, "/ScheduledTasks/Running/id-1", gotPath)
}

func TestCancelTaskToleratesGoneTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client, err := jellyfin.NewClient(srv.URL, "test-key")
	require.NoError(t, err)
	require.NoError(t, client.CancelTask("id-1"))
}
