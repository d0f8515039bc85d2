package embedding

import "sync"

// State is the engine readiness state. Failed is terminal.
type State int

const (
	StateLoading State = iota
	StateReady
	StateFailed
)

// String returns the state name used in health responses.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "loading"
	}
}

// Readiness tracks the Loading -> Ready | Failed lifecycle of the engine.
// Health reporting reads it; requests are refused while not Ready.
type Readiness struct {
	mu    sync.RWMutex
	state State
	err   error
}

// NewReadiness starts in Loading.
func NewReadiness() *Readiness {
	return &Readiness{state: StateLoading}
}

// Ready transitions Loading -> Ready. A terminal Failed state is kept.
func (r *Readiness) Ready() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateLoading {
		r.state = StateReady
	}
}

// Fail transitions to the terminal Failed state with the given cause.
func (r *Readiness) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateFailed {
		r.state = StateFailed
		r.err = err
	}
}

// State returns the current state and, for Failed, its cause.
func (r *Readiness) State() (State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state, r.err
}
