package testutil

import (
	"testing"
	"time"

	"github.com/comalice/commando/internal/primitives"
)

// StateReader is anything exposing the pilot's current state.
type StateReader interface {
	State() primitives.State
}

// WaitForState polls r until it reports want or timeout elapses.
func WaitForState(t testing.TB, r StateReader, want primitives.State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %v, want %v after %v", r.State(), want, timeout)
}
