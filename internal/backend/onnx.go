//go:build onnx

package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"

	"pointd/internal/artifact"
)

// OnnxName is the registry name of the onnxruntime backend.
const OnnxName = "onnx"

func init() {
	Register(OnnxName, func(o Options) Backend { return &onnxBackend{libPath: o.LibraryPath, log: o.Logger} })
}

// onnxBackend runs .onnx artifacts through the onnxruntime shared library.
type onnxBackend struct {
	libPath string
	log     zerolog.Logger
	tr      tracker

	mu    sync.Mutex
	owned bool
}

func (b *onnxBackend) Name() string         { return OnnxName }
func (b *onnxBackend) DefaultEntry() string { return "model.onnx" }
func (b *onnxBackend) NumTensors() int      { return b.tr.count() }

func (b *onnxBackend) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if b.libPath != "" {
		ort.SetSharedLibraryPath(b.libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return ErrDependencyUnavailable(fmt.Sprintf("onnxruntime init: %v", err))
	}
	b.owned = true
	b.log.Debug().Str("library", b.libPath).Msg("onnxruntime environment initialized")
	return nil
}

func (b *onnxBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.owned {
		return nil
	}
	b.owned = false
	return ort.DestroyEnvironment()
}

func (b *onnxBackend) NewTensor(shape []int, data []float32) (Tensor, error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("onnx: shape %v needs %d values, got %d", shape, n, len(data))
	}
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	t, err := ort.NewTensor(ort.NewShape(dims...), append([]float32(nil), data...))
	if err != nil {
		return nil, fmt.Errorf("onnx: new tensor: %w", err)
	}
	return b.wrap(t), nil
}

func (b *onnxBackend) wrap(t *ort.Tensor[float32]) *onnxTensor {
	ot := &onnxTensor{t: t}
	ot.track(&b.tr)
	return ot
}

func (b *onnxBackend) LoadGraph(ctx context.Context, src artifact.Source) (Graph, error) {
	raw, err := src.ReadEntry(ctx)
	if err != nil {
		return nil, err
	}
	ins, outs, err := ort.GetInputOutputInfoWithONNXData(raw)
	if err != nil {
		return nil, fmt.Errorf("onnx: read model info: %w", err)
	}
	g := &onnxGraph{b: b}
	var inNames, outNames []string
	for _, in := range ins {
		g.inputs = append(g.inputs, TensorInfo{Name: in.Name, Shape: []int64(in.Dimensions)})
		inNames = append(inNames, in.Name)
	}
	for _, out := range outs {
		if out.DataType != ort.TensorElementDataTypeFloat {
			return nil, fmt.Errorf("onnx: output %q has element type %v, want float32", out.Name, out.DataType)
		}
		g.outputs = append(g.outputs, TensorInfo{Name: out.Name, Shape: []int64(out.Dimensions)})
		outNames = append(outNames, out.Name)
	}
	if g.session, err = ort.NewDynamicAdvancedSessionWithONNXData(raw, inNames, outNames, nil); err != nil {
		return nil, fmt.Errorf("onnx: create session: %w", err)
	}
	return g, nil
}

type onnxTensor struct {
	handle
	t *ort.Tensor[float32]
}

func (t *onnxTensor) Shape() []int {
	s := t.t.GetShape()
	out := make([]int, len(s))
	for i, d := range s {
		out[i] = int(d)
	}
	return out
}

func (t *onnxTensor) Data() ([]float32, error) {
	if t.isDisposed() {
		return nil, errDisposed
	}
	return append([]float32(nil), t.t.GetData()...), nil
}

func (t *onnxTensor) Dispose() {
	if t.release() {
		_ = t.t.Destroy()
	}
}

type onnxGraph struct {
	b       *onnxBackend
	session *ort.DynamicAdvancedSession
	inputs  []TensorInfo
	outputs []TensorInfo
}

func (g *onnxGraph) Inputs() []TensorInfo  { return append([]TensorInfo(nil), g.inputs...) }
func (g *onnxGraph) Outputs() []TensorInfo { return append([]TensorInfo(nil), g.outputs...) }

func (g *onnxGraph) Close() error {
	if g.session == nil {
		return nil
	}
	err := g.session.Destroy()
	g.session = nil
	return err
}

// Execute allocates outputs from the declared output shapes, binding
// unknown dimensions to the batch size of the first input.
func (g *onnxGraph) Execute(ctx context.Context, inputs map[string]Tensor) ([]Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in := make([]ort.Value, len(g.inputs))
	batch := int64(-1)
	for i, info := range g.inputs {
		t, ok := inputs[info.Name]
		if !ok {
			return nil, fmt.Errorf("onnx: missing input %q", info.Name)
		}
		ot, ok := t.(*onnxTensor)
		if !ok {
			return nil, fmt.Errorf("onnx: input %q was not created by this backend", info.Name)
		}
		if ot.isDisposed() {
			return nil, fmt.Errorf("onnx: input %q: %w", info.Name, errDisposed)
		}
		if s := ot.t.GetShape(); batch < 0 && len(s) > 0 {
			batch = s[0]
		}
		in[i] = ot.t
	}
	if len(inputs) != len(g.inputs) {
		return nil, fmt.Errorf("onnx: got %d inputs, graph declares %d", len(inputs), len(g.inputs))
	}

	outs := make([]*onnxTensor, 0, len(g.outputs))
	release := func() {
		for _, t := range outs {
			t.Dispose()
		}
	}
	values := make([]ort.Value, len(g.outputs))
	for i, info := range g.outputs {
		dims := append([]int64(nil), info.Shape...)
		for j, d := range dims {
			if d < 0 {
				if batch < 0 {
					release()
					return nil, fmt.Errorf("onnx: output %q has dynamic shape %v", info.Name, info.Shape)
				}
				dims[j] = batch
			}
		}
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(dims...))
		if err != nil {
			release()
			return nil, fmt.Errorf("onnx: allocate output %q: %w", info.Name, err)
		}
		outs = append(outs, g.b.wrap(t))
		values[i] = t
	}
	if err := g.session.Run(in, values); err != nil {
		release()
		return nil, fmt.Errorf("onnx: run: %w", err)
	}
	res := make([]Tensor, len(outs))
	for i, t := range outs {
		res[i] = t
	}
	return res, nil
}
