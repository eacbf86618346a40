// Package backend abstracts the numeric runtime that executes a model graph.
//
// Implementations register themselves by name from init functions:
//
//   - gonum: pure Go executor for tfjs graph-model artifacts (always built).
//   - onnx: onnxruntime via github.com/yalue/onnxruntime_go. Enabled with
//     `-tags=onnx`; a stub that fails Init is compiled otherwise.
//   - tensorflow: TensorFlow C API via the official Go bindings. Enabled with
//     `-tags=tensorflow`; stubbed otherwise.
//
// Every Tensor handed out by a backend is counted until Dispose is called, so
// callers can check that request paths do not leak buffers (NumTensors).
package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"pointd/internal/artifact"
)

// ErrUnknownBackend is returned by New for an unregistered name.
var ErrUnknownBackend = errors.New("unknown backend")

// TensorInfo names a graph input or output. Shape uses -1 for unknown
// dimensions and is nil when the rank is unknown.
type TensorInfo struct {
	Name  string
	Shape []int64
}

// Tensor is a float32 buffer owned by a backend.
type Tensor interface {
	Shape() []int
	// Data returns a copy of the values in row-major order.
	Data() ([]float32, error)
	// Dispose releases the buffer. Calls after the first are no-ops.
	Dispose()
}

// Graph is a loaded, immutable computation graph. Execute must be safe for
// concurrent use.
type Graph interface {
	Inputs() []TensorInfo
	Outputs() []TensorInfo
	// Execute runs the graph and returns the declared outputs in order. The
	// caller owns the returned tensors; inputs stay owned by the caller.
	Execute(ctx context.Context, inputs map[string]Tensor) ([]Tensor, error)
	Close() error
}

// Backend creates tensors and loads graphs.
type Backend interface {
	Name() string
	// DefaultEntry is the artifact file name the backend loads by default.
	DefaultEntry() string
	Init(ctx context.Context) error
	LoadGraph(ctx context.Context, src artifact.Source) (Graph, error)
	NewTensor(shape []int, data []float32) (Tensor, error)
	// NumTensors reports tensors created and not yet disposed.
	NumTensors() int
	Close() error
}

// Options are passed to backend factories.
type Options struct {
	// LibraryPath points at a shared runtime library (onnxruntime).
	LibraryPath string
	Logger      zerolog.Logger
}

// Factory constructs an uninitialized backend.
type Factory func(Options) Backend

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{}
)

// Register makes a backend available by name. It panics on duplicates.
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("backend: duplicate registration of " + name)
	}
	registry[name] = f
}

// New constructs the named backend. Init is left to the caller.
func New(name string, opts Options) (Backend, error) {
	regMu.RLock()
	f, ok := registry[name]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, Names())
	}
	return f(opts), nil
}

// Names lists registered backends in sorted order.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// dependencyUnavailableError signals a runtime that is not compiled in or
// cannot be initialized on this host.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime.
func IsDependencyUnavailable(err error) bool {
	var d dependencyUnavailableError
	return errors.As(err, &d)
}

// tracker counts live tensors for one backend.
type tracker struct {
	live atomic.Int64
}

func (t *tracker) count() int { return int(t.live.Load()) }

// handle is embedded by tensors; release decrements the tracker once.
type handle struct {
	tr       *tracker
	disposed atomic.Bool
}

func (h *handle) track(tr *tracker) {
	h.tr = tr
	tr.live.Add(1)
}

func (h *handle) release() bool {
	if h.disposed.CompareAndSwap(false, true) {
		h.tr.live.Add(-1)
		return true
	}
	return false
}

func (h *handle) isDisposed() bool { return h.disposed.Load() }

// errDisposed is returned when reading a disposed tensor.
var errDisposed = errors.New("backend: tensor already disposed")

func numElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("backend: negative dimension in shape %v", shape)
		}
		n *= d
	}
	return n, nil
}

// unavailableBackend stands in for runtimes not compiled into this binary.
type unavailableBackend struct {
	name, entry, reason string
}

func (u unavailableBackend) Name() string         { return u.name }
func (u unavailableBackend) DefaultEntry() string { return u.entry }
func (u unavailableBackend) Init(context.Context) error {
	return ErrDependencyUnavailable(u.reason)
}
func (u unavailableBackend) LoadGraph(context.Context, artifact.Source) (Graph, error) {
	return nil, ErrDependencyUnavailable(u.reason)
}
func (u unavailableBackend) NewTensor([]int, []float32) (Tensor, error) {
	return nil, ErrDependencyUnavailable(u.reason)
}
func (u unavailableBackend) NumTensors() int { return 0 }
func (u unavailableBackend) Close() error    { return nil }
