package serving

import "sync/atomic"

type gateState struct {
	state   State
	backend string
	handle  *Handle
	err     error
}

// Gate holds the readiness state and the published handle. Transitions are
// loading -> ready and loading -> failed; both targets are terminal. All
// methods are non-blocking and safe for concurrent use.
type Gate struct {
	cur atomic.Pointer[gateState]
}

// NewGate returns a gate in the loading state.
func NewGate() *Gate {
	g := &Gate{}
	g.cur.Store(&gateState{state: StateLoading})
	return g
}

// transition applies f to the current state while it is loading. It returns
// false once the gate has left loading.
func (g *Gate) transition(f func(s gateState) gateState) bool {
	for {
		old := g.cur.Load()
		if old.state != StateLoading {
			return false
		}
		next := f(*old)
		if g.cur.CompareAndSwap(old, &next) {
			return true
		}
	}
}

// SetBackend records the initialized backend id so health can report it
// before the model is ready.
func (g *Gate) SetBackend(id string) bool {
	return g.transition(func(s gateState) gateState {
		s.backend = id
		return s
	})
}

// Publish makes h visible and flips the gate to ready.
func (g *Gate) Publish(h *Handle) bool {
	if h == nil {
		return false
	}
	ok := g.transition(func(s gateState) gateState {
		s.state = StateReady
		s.handle = h
		s.backend = h.BackendID
		return s
	})
	if ok {
		modelReady.Set(1)
	}
	return ok
}

// Fail flips the gate to failed.
func (g *Gate) Fail(err error) bool {
	return g.transition(func(s gateState) gateState {
		s.state = StateFailed
		s.err = err
		return s
	})
}

// Ready reports whether a handle has been published.
func (g *Gate) Ready() bool { return g.cur.Load().state == StateReady }

// Handle returns the published handle.
func (g *Gate) Handle() (*Handle, bool) {
	s := g.cur.Load()
	return s.handle, s.state == StateReady
}

func (g *Gate) Describe() Description {
	s := g.cur.Load()
	d := Description{
		Ready:       s.state == StateReady,
		State:       s.state,
		Backend:     s.backend,
		ModelLoaded: s.handle != nil,
		Err:         s.err,
	}
	if s.handle != nil {
		d.InputName = s.handle.InputName
		d.OutputName = s.handle.OutputName
	}
	return d
}
