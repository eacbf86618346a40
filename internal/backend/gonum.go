package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"pointd/internal/artifact"
	"pointd/internal/graphmodel"
)

// GonumName is the registry name of the pure Go backend.
const GonumName = "gonum"

func init() {
	Register(GonumName, func(o Options) Backend { return NewGonum(o.Logger) })
}

// Gonum executes tfjs graph-model artifacts with gonum dense matrices.
type Gonum struct {
	log zerolog.Logger
	tr  tracker
}

// NewGonum returns an uninitialized gonum backend.
func NewGonum(log zerolog.Logger) *Gonum {
	return &Gonum{log: log}
}

func (b *Gonum) Name() string         { return GonumName }
func (b *Gonum) DefaultEntry() string { return "model.json" }
func (b *Gonum) NumTensors() int      { return b.tr.count() }
func (b *Gonum) Close() error         { return nil }

// Init checks that matrix multiplication works on this host.
func (b *Gonum) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var c mat.Dense
	c.Mul(mat.NewDense(1, 2, []float64{1, 2}), mat.NewDense(2, 1, []float64{3, 4}))
	if got := c.At(0, 0); got != 11 {
		return fmt.Errorf("gonum: matmul self-check returned %v", got)
	}
	return nil
}

func (b *Gonum) NewTensor(shape []int, data []float32) (Tensor, error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("gonum: shape %v needs %d values, got %d", shape, n, len(data))
	}
	t := &denseTensor{shape: append([]int(nil), shape...), data: append([]float32(nil), data...)}
	t.track(&b.tr)
	return t, nil
}

// LoadGraph reads model.json and its shards from src and compiles the
// execution plan for the declared outputs.
func (b *Gonum) LoadGraph(ctx context.Context, src artifact.Source) (Graph, error) {
	raw, err := src.ReadEntry(ctx)
	if err != nil {
		return nil, err
	}
	m, err := graphmodel.Parse(raw)
	if err != nil {
		return nil, err
	}
	weights, err := m.LoadWeights(ctx, src.ReadSibling)
	if err != nil {
		return nil, err
	}
	g, err := compile(m, weights, &b.tr)
	if err != nil {
		return nil, err
	}
	b.log.Debug().Int("nodes", len(g.plan)).Int("weights", len(weights)).Msg("gonum graph compiled")
	return g, nil
}

type denseTensor struct {
	handle
	shape []int
	data  []float32
}

func (t *denseTensor) Shape() []int { return append([]int(nil), t.shape...) }

func (t *denseTensor) Data() ([]float32, error) {
	if t.isDisposed() {
		return nil, errDisposed
	}
	return append([]float32(nil), t.data...), nil
}

func (t *denseTensor) Dispose() {
	if t.release() {
		t.data = nil
	}
}

// value is the executor's internal float64 buffer.
type value struct {
	shape []int
	data  []float64
}

type gonumGraph struct {
	nodes   map[string]*graphmodel.Node
	plan    []*graphmodel.Node
	weights map[string]graphmodel.Weight
	inputs  []TensorInfo
	outputs []TensorInfo
	tr      *tracker
}

func compile(m *graphmodel.Model, weights map[string]graphmodel.Weight, tr *tracker) (*gonumGraph, error) {
	g := &gonumGraph{
		nodes:   make(map[string]*graphmodel.Node, len(m.Topology.Node)),
		weights: weights,
		tr:      tr,
	}
	for i := range m.Topology.Node {
		n := &m.Topology.Node[i]
		g.nodes[n.Name] = n
	}
	for _, ti := range m.Inputs() {
		g.inputs = append(g.inputs, TensorInfo{Name: ti.Name, Shape: ti.TensorShape.Dims()})
	}
	for _, ti := range m.Outputs() {
		g.outputs = append(g.outputs, TensorInfo{Name: ti.Name, Shape: ti.TensorShape.Dims()})
	}
	if len(g.inputs) == 0 {
		return nil, fmt.Errorf("gonum: graph declares no inputs")
	}
	if len(g.outputs) == 0 {
		return nil, fmt.Errorf("gonum: graph declares no outputs")
	}
	isInput := make(map[string]bool, len(g.inputs))
	for _, in := range g.inputs {
		if _, ok := g.nodes[in.Name]; !ok {
			return nil, fmt.Errorf("gonum: input %q is not a graph node", in.Name)
		}
		isInput[in.Name] = true
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.nodes))
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("gonum: cycle through node %q", name)
		}
		n, ok := g.nodes[name]
		if !ok {
			return fmt.Errorf("gonum: reference to unknown node %q", name)
		}
		state[name] = visiting
		for _, in := range n.Input {
			if strings.HasPrefix(in, "^") {
				continue
			}
			if err := visit(graphmodel.NodeName(in)); err != nil {
				return err
			}
		}
		if err := g.check(n, isInput); err != nil {
			return err
		}
		state[name] = done
		g.plan = append(g.plan, n)
		return nil
	}
	for _, out := range g.outputs {
		if err := visit(out.Name); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// check validates a node at load time so unsupported graphs fail before
// serving.
func (g *gonumGraph) check(n *graphmodel.Node, isInput map[string]bool) error {
	switch n.Op {
	case "Placeholder":
		if !isInput[n.Name] {
			return fmt.Errorf("gonum: placeholder %q is not a declared input", n.Name)
		}
		return nil
	case "Const":
		if _, ok := g.weights[n.Name]; !ok {
			return fmt.Errorf("gonum: const %q has no weight in the manifest", n.Name)
		}
		return nil
	case "_FusedMatMul":
		for _, op := range attrStrings(n, "fused_ops") {
			if _, ok := fusedActivations[op]; !ok && op != "BiasAdd" {
				return fmt.Errorf("gonum: node %q: unsupported fused op %q", n.Name, op)
			}
		}
	}
	if _, ok := kernels[n.Op]; !ok {
		return fmt.Errorf("gonum: node %q: unsupported op %q", n.Name, n.Op)
	}
	return nil
}

func (g *gonumGraph) Inputs() []TensorInfo  { return append([]TensorInfo(nil), g.inputs...) }
func (g *gonumGraph) Outputs() []TensorInfo { return append([]TensorInfo(nil), g.outputs...) }
func (g *gonumGraph) Close() error          { return nil }

func (g *gonumGraph) Execute(ctx context.Context, inputs map[string]Tensor) ([]Tensor, error) {
	feeds := make(map[string]*value, len(inputs))
	for name, t := range inputs {
		dt, ok := t.(*denseTensor)
		if !ok {
			return nil, fmt.Errorf("gonum: input %q was not created by this backend", name)
		}
		if dt.isDisposed() {
			return nil, fmt.Errorf("gonum: input %q: %w", name, errDisposed)
		}
		node := graphmodel.NodeName(name)
		if n, ok := g.nodes[node]; !ok || n.Op != "Placeholder" {
			return nil, fmt.Errorf("gonum: unknown input %q", name)
		}
		v := &value{shape: append([]int(nil), dt.shape...), data: make([]float64, len(dt.data))}
		for i, x := range dt.data {
			v.data[i] = float64(x)
		}
		feeds[node] = v
	}
	for _, in := range g.inputs {
		if _, ok := feeds[in.Name]; !ok {
			return nil, fmt.Errorf("gonum: missing input %q", in.Name)
		}
	}

	vals := make(map[string]*value, len(g.plan))
	for _, n := range g.plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var out *value
		switch n.Op {
		case "Placeholder":
			out = feeds[n.Name]
		case "Const":
			w := g.weights[n.Name]
			out = &value{shape: w.Shape, data: w.Values}
		default:
			args := make([]*value, 0, len(n.Input))
			for _, in := range n.Input {
				if strings.HasPrefix(in, "^") {
					continue
				}
				args = append(args, vals[graphmodel.NodeName(in)])
			}
			v, err := kernels[n.Op](n, args)
			if err != nil {
				return nil, fmt.Errorf("gonum: node %q (%s): %w", n.Name, n.Op, err)
			}
			out = v
		}
		vals[n.Name] = out
	}

	outs := make([]Tensor, 0, len(g.outputs))
	for _, o := range g.outputs {
		v := vals[o.Name]
		data := make([]float32, len(v.data))
		for i, x := range v.data {
			data[i] = float32(x)
		}
		t := &denseTensor{shape: append([]int(nil), v.shape...), data: data}
		t.track(g.tr)
		outs = append(outs, t)
	}
	return outs, nil
}
