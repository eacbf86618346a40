package serving

import (
	"errors"

	"pointd/internal/backend"
)

// State is the readiness state of the process.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Handle is a loaded, warmed-up model. It is immutable once published.
type Handle struct {
	Graph      backend.Graph
	Backend    backend.Backend
	BackendID  string
	InputName  string
	OutputName string
}

// Close releases the graph and the backend runtime.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	var errs []error
	if h.Graph != nil {
		errs = append(errs, h.Graph.Close())
	}
	if h.Backend != nil {
		errs = append(errs, h.Backend.Close())
	}
	return errors.Join(errs...)
}

// Description is a point-in-time view of the gate.
type Description struct {
	Ready       bool
	State       State
	Backend     string
	ModelLoaded bool
	InputName   string
	OutputName  string
	Err         error
}

// Result holds per-point probabilities and classes in input order.
type Result struct {
	Probs     []float64
	Classes   []int
	Threshold float64
}
