package serving

import (
	"context"
	"errors"
	"sync/atomic"

	"pointd/internal/artifact"
	"pointd/internal/backend"
)

// fakeBackend returns canned outputs and counts live tensors.
type fakeBackend struct {
	live     atomic.Int64
	executed atomic.Int64

	initErr  error
	loadErr  error
	execErr  error
	noOutput bool
	// outShape and outData build the first output for a batch of n.
	outShape func(n int) []int
	outData  func(n int) []float32
}

func newFake() *fakeBackend {
	return &fakeBackend{
		outShape: func(n int) []int { return []int{n, 1} },
		outData: func(n int) []float32 {
			out := make([]float32, n)
			for i := range out {
				out[i] = 0.5
			}
			return out
		},
	}
}

func (b *fakeBackend) Name() string               { return "fake" }
func (b *fakeBackend) DefaultEntry() string       { return "model.fake" }
func (b *fakeBackend) Init(context.Context) error { return b.initErr }
func (b *fakeBackend) NumTensors() int            { return int(b.live.Load()) }
func (b *fakeBackend) Close() error               { return nil }

func (b *fakeBackend) newTensor(shape []int, data []float32) *fakeTensor {
	b.live.Add(1)
	return &fakeTensor{b: b, shape: shape, data: data}
}

func (b *fakeBackend) NewTensor(shape []int, data []float32) (backend.Tensor, error) {
	return b.newTensor(shape, data), nil
}

func (b *fakeBackend) LoadGraph(context.Context, artifact.Source) (backend.Graph, error) {
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return &fakeGraph{b: b}, nil
}

type fakeTensor struct {
	b        *fakeBackend
	shape    []int
	data     []float32
	disposed atomic.Bool
}

func (t *fakeTensor) Shape() []int { return t.shape }
func (t *fakeTensor) Data() ([]float32, error) {
	if t.disposed.Load() {
		return nil, errors.New("disposed")
	}
	return t.data, nil
}
func (t *fakeTensor) Dispose() {
	if t.disposed.CompareAndSwap(false, true) {
		t.b.live.Add(-1)
	}
}

type fakeGraph struct{ b *fakeBackend }

func (g *fakeGraph) Inputs() []backend.TensorInfo {
	if g.b.noOutput {
		return nil
	}
	return []backend.TensorInfo{{Name: "dense_input", Shape: []int64{-1, 2}}}
}

func (g *fakeGraph) Outputs() []backend.TensorInfo {
	if g.b.noOutput {
		return nil
	}
	return []backend.TensorInfo{{Name: "Identity", Shape: []int64{-1, 1}}}
}

func (g *fakeGraph) Close() error { return nil }

func (g *fakeGraph) Execute(ctx context.Context, in map[string]backend.Tensor) ([]backend.Tensor, error) {
	g.b.executed.Add(1)
	if g.b.execErr != nil {
		return nil, g.b.execErr
	}
	x := in["dense_input"]
	if x == nil {
		return nil, errors.New("missing input")
	}
	n := x.Shape()[0]
	shape, data := g.b.outShape(n), g.b.outData(n)
	// A second output checks that every output is released.
	return []backend.Tensor{g.b.newTensor(shape, data), g.b.newTensor([]int{1}, []float32{0})}, nil
}

// fakes registered once; tests reconfigure them through fakeRegistry.
var fakeRegistry = map[string]*fakeBackend{}

func registerFake(name string, b *fakeBackend) {
	if _, ok := fakeRegistry[name]; !ok {
		backend.Register(name, func(backend.Options) backend.Backend { return fakeRegistry[name] })
	}
	fakeRegistry[name] = b
}

// readyService publishes a handle backed by b.
func readyService(b *fakeBackend) *Service {
	g := NewGate()
	graph, _ := b.LoadGraph(context.Background(), nil)
	g.Publish(&Handle{Graph: graph, Backend: b, BackendID: "fake", InputName: "dense_input", OutputName: "Identity"})
	return NewService(g, nopLogger)
}
