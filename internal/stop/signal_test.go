package stop_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"harborsync/internal/stop"
)

func TestSignalTrigger(t *testing.T) {
	sig := stop.NewSignal()
	require.False(t, sig.Triggered())

	select {
	case <-sig.Done():
		t.Fatal("done channel closed before trigger")
	default:
	}

	sig.Trigger()
	require.True(t, sig.Triggered())

	select {
	case <-sig.Done():
	default:
		t.Fatal("done channel still open after trigger")
	}

	// A second trigger is a no-op, not a panic.
	sig.Trigger()
	require.True(t, sig.Triggered())
}
