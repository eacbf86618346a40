//go:build tensorflow

package backend

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	tf "github.com/tensorflow/tensorflow/tensorflow/go"

	"pointd/internal/artifact"
)

// TensorflowName is the registry name of the TensorFlow C API backend.
const TensorflowName = "tensorflow"

func init() {
	Register(TensorflowName, func(o Options) Backend { return &tfBackend{log: o.Logger} })
}

// tfBackend runs frozen GraphDef (.pb) artifacts through libtensorflow.
type tfBackend struct {
	log zerolog.Logger
	tr  tracker
}

func (b *tfBackend) Name() string         { return TensorflowName }
func (b *tfBackend) DefaultEntry() string { return "model.pb" }
func (b *tfBackend) NumTensors() int      { return b.tr.count() }
func (b *tfBackend) Close() error         { return nil }

func (b *tfBackend) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Debug().Str("version", tf.Version()).Msg("tensorflow runtime")
	return nil
}

func (b *tfBackend) NewTensor(shape []int, data []float32) (Tensor, error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("tensorflow: shape %v needs %d values, got %d", shape, n, len(data))
	}
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	var buf bytes.Buffer
	for _, v := range data {
		_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(v))
	}
	t, err := tf.ReadTensor(tf.Float, dims, &buf)
	if err != nil {
		return nil, fmt.Errorf("tensorflow: new tensor: %w", err)
	}
	return b.wrap(t), nil
}

func (b *tfBackend) wrap(t *tf.Tensor) *tfTensor {
	tt := &tfTensor{t: t}
	tt.track(&b.tr)
	return tt
}

// LoadGraph imports a frozen graph. Placeholders are the inputs and ops
// whose outputs nothing consumes are the outputs, both in graph order.
func (b *tfBackend) LoadGraph(ctx context.Context, src artifact.Source) (Graph, error) {
	raw, err := src.ReadEntry(ctx)
	if err != nil {
		return nil, err
	}
	graph := tf.NewGraph()
	if err := graph.Import(raw, ""); err != nil {
		return nil, fmt.Errorf("tensorflow: import graph: %w", err)
	}
	g := &tfGraph{b: b, graph: graph}
	for _, op := range graph.Operations() {
		switch op.Type() {
		case "Placeholder":
			g.in = append(g.in, op.Output(0))
			g.inputs = append(g.inputs, TensorInfo{Name: op.Name(), Shape: shapeDims(op.Output(0))})
		case "Const", "NoOp":
		default:
			if op.NumOutputs() > 0 && len(op.Output(0).Consumers()) == 0 {
				g.out = append(g.out, op.Output(0))
				g.outputs = append(g.outputs, TensorInfo{Name: op.Name(), Shape: shapeDims(op.Output(0))})
			}
		}
	}
	if g.session, err = tf.NewSession(graph, nil); err != nil {
		return nil, fmt.Errorf("tensorflow: new session: %w", err)
	}
	return g, nil
}

func shapeDims(o tf.Output) []int64 {
	s := o.Shape()
	n := s.NumDimensions()
	if n < 0 {
		return nil
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = s.Size(i)
	}
	return out
}

type tfTensor struct {
	handle
	t *tf.Tensor
}

func (t *tfTensor) Shape() []int {
	s := t.t.Shape()
	out := make([]int, len(s))
	for i, d := range s {
		out[i] = int(d)
	}
	return out
}

func (t *tfTensor) Data() ([]float32, error) {
	if t.isDisposed() {
		return nil, errDisposed
	}
	if t.t.DataType() != tf.Float {
		return nil, fmt.Errorf("tensorflow: tensor type %v, want float", t.t.DataType())
	}
	var buf bytes.Buffer
	if _, err := t.t.WriteContentsTo(&buf); err != nil {
		return nil, err
	}
	out := make([]float32, buf.Len()/4)
	if err := binary.Read(&buf, binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Dispose drops the reference; libtensorflow frees the buffer from a
// finalizer.
func (t *tfTensor) Dispose() {
	if t.release() {
		t.t = nil
	}
}

type tfGraph struct {
	b       *tfBackend
	graph   *tf.Graph
	session *tf.Session
	in      []tf.Output
	out     []tf.Output
	inputs  []TensorInfo
	outputs []TensorInfo
}

func (g *tfGraph) Inputs() []TensorInfo  { return append([]TensorInfo(nil), g.inputs...) }
func (g *tfGraph) Outputs() []TensorInfo { return append([]TensorInfo(nil), g.outputs...) }
func (g *tfGraph) Close() error          { return g.session.Close() }

func (g *tfGraph) Execute(ctx context.Context, inputs map[string]Tensor) ([]Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	feeds := make(map[tf.Output]*tf.Tensor, len(g.in))
	for i, info := range g.inputs {
		t, ok := inputs[info.Name]
		if !ok {
			return nil, fmt.Errorf("tensorflow: missing input %q", info.Name)
		}
		tt, ok := t.(*tfTensor)
		if !ok {
			return nil, fmt.Errorf("tensorflow: input %q was not created by this backend", info.Name)
		}
		if tt.isDisposed() {
			return nil, fmt.Errorf("tensorflow: input %q: %w", info.Name, errDisposed)
		}
		feeds[g.in[i]] = tt.t
	}
	res, err := g.session.Run(feeds, g.out, nil)
	if err != nil {
		return nil, fmt.Errorf("tensorflow: run: %w", err)
	}
	outs := make([]Tensor, len(res))
	for i, t := range res {
		outs[i] = g.b.wrap(t)
	}
	return outs, nil
}
