package serving

import "pointd/internal/backend"

// tensorScope collects tensors created during one call so they can be
// released together with a single deferred call.
type tensorScope struct {
	tensors []backend.Tensor
}

func (s *tensorScope) add(ts ...backend.Tensor) {
	for _, t := range ts {
		if t != nil {
			s.tensors = append(s.tensors, t)
		}
	}
}

func (s *tensorScope) release() {
	for _, t := range s.tensors {
		t.Dispose()
	}
	s.tensors = nil
}
