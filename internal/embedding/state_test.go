package embedding

import (
	"errors"
	"testing"
)

func TestReadinessLifecycle(t *testing.T) {
	r := NewReadiness()
	if state, _ := r.State(); state != StateLoading {
		t.Fatalf("expected loading, got %v", state)
	}

	r.Ready()
	if state, _ := r.State(); state != StateReady {
		t.Fatalf("expected ready, got %v", state)
	}
}

func TestReadinessFailedIsTerminal(t *testing.T) {
	r := NewReadiness()
	cause := errors.New("model load failed")
	r.Fail(cause)

	r.Ready()
	state, err := r.State()
	if state != StateFailed {
		t.Fatalf("failed state must be terminal, got %v", state)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateLoading, "loading"},
		{StateReady, "ready"},
		{StateFailed, "failed"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
