package backend

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"unicode"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"pointd/internal/graphmodel"
)

type kernel func(n *graphmodel.Node, args []*value) (*value, error)

var kernels map[string]kernel

func init() {
	kernels = map[string]kernel{
		"Placeholder":  nil,
		"Const":        nil,
		"Identity":     identity,
		"StopGradient": identity,
		"Snapshot":     identity,
		"MatMul":       matMul,
		"_FusedMatMul": fusedMatMul,
		"BiasAdd":      biasAdd,
		"Add":          binary(func(a, b float64) float64 { return a + b }, floats.AddTo),
		"AddV2":        binary(func(a, b float64) float64 { return a + b }, floats.AddTo),
		"Sub":          binary(func(a, b float64) float64 { return a - b }, floats.SubTo),
		"Mul":          binary(func(a, b float64) float64 { return a * b }, floats.MulTo),
		"Maximum":      binary(math.Max, nil),
		"Minimum":      binary(math.Min, nil),
		"Softmax":      softmax,
		"Reshape":      reshape,
		"Squeeze":      squeeze,
	}
	for op, f := range fusedActivations {
		kernels[op] = unary(f)
	}
	kernels["Exp"] = unary(func(x, _ float64) float64 { return math.Exp(x) })
	kernels["Neg"] = unary(func(x, _ float64) float64 { return -x })
	kernels["Softplus"] = unary(func(x, _ float64) float64 { return math.Log1p(math.Exp(x)) })
}

// fusedActivations are the element-wise ops allowed after BiasAdd in a
// _FusedMatMul. The second argument is the leaky relu alpha.
var fusedActivations = map[string]func(x, alpha float64) float64{
	"Relu":      func(x, _ float64) float64 { return math.Max(x, 0) },
	"Relu6":     func(x, _ float64) float64 { return math.Min(math.Max(x, 0), 6) },
	"Elu":       func(x, _ float64) float64 { return elu(x) },
	"Sigmoid":   func(x, _ float64) float64 { return sigmoid(x) },
	"Tanh":      func(x, _ float64) float64 { return math.Tanh(x) },
	"LeakyRelu": leakyRelu,
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func elu(x float64) float64 {
	if x >= 0 {
		return x
	}
	return math.Expm1(x)
}

func leakyRelu(x, alpha float64) float64 {
	if x >= 0 {
		return x
	}
	return alpha * x
}

var errArity = errors.New("wrong number of inputs")

func identity(_ *graphmodel.Node, args []*value) (*value, error) {
	if len(args) < 1 {
		return nil, errArity
	}
	return args[0], nil
}

func unary(f func(x, alpha float64) float64) kernel {
	return func(n *graphmodel.Node, args []*value) (*value, error) {
		if len(args) != 1 {
			return nil, errArity
		}
		alpha := attrFloat(n, "alpha", 0.2)
		out := &value{shape: args[0].shape, data: make([]float64, len(args[0].data))}
		for i, x := range args[0].data {
			out.data[i] = f(x, alpha)
		}
		return out, nil
	}
}

func matMul(n *graphmodel.Node, args []*value) (*value, error) {
	if len(args) != 2 {
		return nil, errArity
	}
	return product(args[0], args[1], attrBool(n, "transpose_a"), attrBool(n, "transpose_b"))
}

func product(a, b *value, ta, tb bool) (*value, error) {
	if len(a.shape) != 2 || len(b.shape) != 2 {
		return nil, fmt.Errorf("matmul needs rank-2 operands, got %v and %v", a.shape, b.shape)
	}
	ar, ac := a.shape[0], a.shape[1]
	br, bc := b.shape[0], b.shape[1]
	if ta {
		ar, ac = ac, ar
	}
	if tb {
		br, bc = bc, br
	}
	if ac != br {
		return nil, fmt.Errorf("matmul inner dimensions differ: %v x %v", a.shape, b.shape)
	}
	out := &value{shape: []int{ar, bc}, data: make([]float64, ar*bc)}
	if ar == 0 || bc == 0 || ac == 0 {
		return out, nil
	}
	var am, bm mat.Matrix = mat.NewDense(a.shape[0], a.shape[1], a.data), mat.NewDense(b.shape[0], b.shape[1], b.data)
	if ta {
		am = am.T()
	}
	if tb {
		bm = bm.T()
	}
	mat.NewDense(ar, bc, out.data).Mul(am, bm)
	return out, nil
}

func fusedMatMul(n *graphmodel.Node, args []*value) (*value, error) {
	if len(args) < 2 {
		return nil, errArity
	}
	out, err := product(args[0], args[1], attrBool(n, "transpose_a"), attrBool(n, "transpose_b"))
	if err != nil {
		return nil, err
	}
	extra := args[2:]
	alpha := attrFloat(n, "leakyrelu_alpha", 0.2)
	for _, op := range attrStrings(n, "fused_ops") {
		if op == "BiasAdd" {
			if len(extra) == 0 {
				return nil, fmt.Errorf("fused BiasAdd without a bias input")
			}
			if out, err = addBias(out, extra[0]); err != nil {
				return nil, err
			}
			extra = extra[1:]
			continue
		}
		f, ok := fusedActivations[op]
		if !ok {
			return nil, fmt.Errorf("unsupported fused op %q", op)
		}
		for i, x := range out.data {
			out.data[i] = f(x, alpha)
		}
	}
	return out, nil
}

func biasAdd(_ *graphmodel.Node, args []*value) (*value, error) {
	if len(args) != 2 {
		return nil, errArity
	}
	return addBias(args[0], args[1])
}

// addBias adds a vector along the last axis of x.
func addBias(x, bias *value) (*value, error) {
	if len(x.shape) == 0 || len(bias.shape) != 1 || x.shape[len(x.shape)-1] != bias.shape[0] {
		return nil, fmt.Errorf("bias shape %v does not match %v", bias.shape, x.shape)
	}
	out := &value{shape: x.shape, data: append([]float64(nil), x.data...)}
	w := bias.shape[0]
	if w == 0 {
		return out, nil
	}
	for off := 0; off < len(out.data); off += w {
		floats.Add(out.data[off:off+w], bias.data)
	}
	return out, nil
}

// binary applies f with numpy-style broadcasting. fast, when set, handles
// operands of identical shape.
func binary(f func(a, b float64) float64, fast func(dst, s, t []float64) []float64) kernel {
	return func(_ *graphmodel.Node, args []*value) (*value, error) {
		if len(args) != 2 {
			return nil, errArity
		}
		a, b := args[0], args[1]
		if fast != nil && sameShape(a.shape, b.shape) {
			out := &value{shape: a.shape, data: make([]float64, len(a.data))}
			fast(out.data, a.data, b.data)
			return out, nil
		}
		shape, err := broadcastShape(a.shape, b.shape)
		if err != nil {
			return nil, err
		}
		size := 1
		for _, d := range shape {
			size *= d
		}
		out := &value{shape: shape, data: make([]float64, size)}
		sa, sb := broadcastStrides(a.shape, shape), broadcastStrides(b.shape, shape)
		idx := make([]int, len(shape))
		for i := range out.data {
			ia, ib := 0, 0
			for d, k := range idx {
				ia += k * sa[d]
				ib += k * sb[d]
			}
			out.data[i] = f(a.data[ia], b.data[ib])
			for d := len(idx) - 1; d >= 0; d-- {
				idx[d]++
				if idx[d] < shape[d] {
					break
				}
				idx[d] = 0
			}
		}
		return out, nil
	}
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func broadcastShape(a, b []int) ([]int, error) {
	n := max(len(a), len(b))
	out := make([]int, n)
	for i := 0; i < n; i++ {
		da, db := 1, 1
		if j := len(a) - n + i; j >= 0 {
			da = a[j]
		}
		if j := len(b) - n + i; j >= 0 {
			db = b[j]
		}
		switch {
		case da == db, db == 1:
			out[i] = da
		case da == 1:
			out[i] = db
		default:
			return nil, fmt.Errorf("shapes %v and %v do not broadcast", a, b)
		}
	}
	return out, nil
}

// broadcastStrides returns strides of shape aligned to target, zero on
// broadcast axes.
func broadcastStrides(shape, target []int) []int {
	out := make([]int, len(target))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		j := len(target) - len(shape) + i
		if shape[i] != 1 {
			out[j] = stride
		}
		stride *= shape[i]
	}
	return out
}

func softmax(_ *graphmodel.Node, args []*value) (*value, error) {
	if len(args) != 1 {
		return nil, errArity
	}
	x := args[0]
	if len(x.shape) == 0 {
		return nil, fmt.Errorf("softmax of a scalar")
	}
	out := &value{shape: x.shape, data: make([]float64, len(x.data))}
	w := x.shape[len(x.shape)-1]
	if w == 0 {
		return out, nil
	}
	for off := 0; off < len(x.data); off += w {
		row, dst := x.data[off:off+w], out.data[off:off+w]
		m := floats.Max(row)
		for i, v := range row {
			dst[i] = math.Exp(v - m)
		}
		floats.Scale(1/floats.Sum(dst), dst)
	}
	return out, nil
}

func reshape(_ *graphmodel.Node, args []*value) (*value, error) {
	if len(args) != 2 {
		return nil, errArity
	}
	x, target := args[0], args[1]
	shape := make([]int, len(target.data))
	infer, known := -1, 1
	for i, d := range target.data {
		shape[i] = int(d)
		switch {
		case shape[i] == -1 && infer < 0:
			infer = i
		case shape[i] < 0:
			return nil, fmt.Errorf("invalid reshape target %v", target.data)
		default:
			known *= shape[i]
		}
	}
	if infer >= 0 {
		if known == 0 || len(x.data)%known != 0 {
			return nil, fmt.Errorf("cannot reshape %v into %v", x.shape, target.data)
		}
		shape[infer] = len(x.data) / known
	} else if known != len(x.data) {
		return nil, fmt.Errorf("cannot reshape %v into %v", x.shape, target.data)
	}
	return &value{shape: shape, data: x.data}, nil
}

func squeeze(n *graphmodel.Node, args []*value) (*value, error) {
	if len(args) != 1 {
		return nil, errArity
	}
	x := args[0]
	axes := attrInts(n, "squeeze_dims")
	if len(axes) == 0 {
		axes = attrInts(n, "axis")
	}
	drop := make(map[int]bool, len(axes))
	for _, a := range axes {
		if a < 0 {
			a += len(x.shape)
		}
		if a < 0 || a >= len(x.shape) || x.shape[a] != 1 {
			return nil, fmt.Errorf("cannot squeeze axis %d of %v", a, x.shape)
		}
		drop[a] = true
	}
	shape := make([]int, 0, len(x.shape))
	for i, d := range x.shape {
		if drop[i] || (len(drop) == 0 && d == 1) {
			continue
		}
		shape = append(shape, d)
	}
	return &value{shape: shape, data: x.data}, nil
}

func attrBool(n *graphmodel.Node, key string) bool {
	a, ok := n.Attr[key]
	return ok && a.B != nil && *a.B
}

func attrFloat(n *graphmodel.Node, key string, def float64) float64 {
	if a, ok := n.Attr[key]; ok && a.F != nil {
		return *a.F
	}
	return def
}

func attrInts(n *graphmodel.Node, key string) []int {
	a, ok := n.Attr[key]
	if !ok {
		return nil
	}
	if a.List == nil {
		if a.I != nil {
			return []int{int(*a.I)}
		}
		return nil
	}
	out := make([]int, len(a.List.I))
	for i, v := range a.List.I {
		out[i] = int(v)
	}
	return out
}

// attrStrings returns a string list attribute. GraphDef JSON carries bytes
// base64-encoded; values that do not decode to printable text are kept raw.
func attrStrings(n *graphmodel.Node, key string) []string {
	a, ok := n.Attr[key]
	if !ok || a.List == nil {
		return nil
	}
	out := make([]string, len(a.List.S))
	for i, s := range a.List.S {
		out[i] = decodeAttrString(s)
	}
	return out
}

func decodeAttrString(s string) string {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(b) == 0 {
		return s
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) {
			return s
		}
	}
	return string(b)
}
