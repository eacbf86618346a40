package main

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointd/internal/artifact"
	"pointd/internal/backend"
	"pointd/internal/config"
)

// slowBackend finishes LoadGraph only when release is closed, whatever the
// context says.
type slowBackend struct {
	entered chan struct{}
	release chan struct{}
	closed  atomic.Bool
}

type slowGraph struct{ closed *atomic.Bool }

type slowTensor struct{ shape []int }

func (t slowTensor) Shape() []int             { return t.shape }
func (t slowTensor) Data() ([]float32, error) { return make([]float32, t.shape[0]), nil }
func (t slowTensor) Dispose()                 {}

func (b *slowBackend) Name() string               { return "slow" }
func (b *slowBackend) DefaultEntry() string       { return "model.slow" }
func (b *slowBackend) Init(context.Context) error { return nil }
func (b *slowBackend) NumTensors() int            { return 0 }
func (b *slowBackend) Close() error               { b.closed.Store(true); return nil }
func (b *slowBackend) NewTensor(shape []int, _ []float32) (backend.Tensor, error) {
	return slowTensor{shape: shape}, nil
}
func (b *slowBackend) LoadGraph(context.Context, artifact.Source) (backend.Graph, error) {
	close(b.entered)
	<-b.release
	return &slowGraph{closed: new(atomic.Bool)}, nil
}

func (g *slowGraph) Inputs() []backend.TensorInfo  { return []backend.TensorInfo{{Name: "x"}} }
func (g *slowGraph) Outputs() []backend.TensorInfo { return []backend.TensorInfo{{Name: "y"}} }
func (g *slowGraph) Close() error                  { g.closed.Store(true); return nil }
func (g *slowGraph) Execute(_ context.Context, in map[string]backend.Tensor) ([]backend.Tensor, error) {
	return []backend.Tensor{slowTensor{shape: []int{in["x"].Shape()[0], 1}}}, nil
}

func TestServeOn_ShutdownDuringLoadClosesLateHandle(t *testing.T) {
	b := &slowBackend{entered: make(chan struct{}), release: make(chan struct{})}
	backend.Register("slow-shutdown", func(backend.Options) backend.Backend { return b })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg := config.Default()
	cfg.Backend = "slow-shutdown"
	cfg.ModelURL = "/nonexistent/model.slow"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveOn(ctx, ln, cfg, zerolog.Nop()) }()

	select {
	case <-b.entered:
	case <-time.After(10 * time.Second):
		t.Fatal("loader never reached LoadGraph")
	}
	cancel()
	select {
	case <-done:
		t.Fatal("serveOn returned while the loader was still running")
	case <-time.After(100 * time.Millisecond):
	}
	close(b.release)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("serveOn did not return after the loader finished")
	}
	assert.True(t, b.closed.Load(), "backend of the late handle was not closed")
}
