// Package graphmodeltest writes small graph-model artifacts for tests.
package graphmodeltest

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"pointd/internal/graphmodel"
)

// ShardName is the single weight shard every fixture writes.
const ShardName = "group1-shard1of1.bin"

// Dense is one fully connected layer. Kernel is [in][out].
type Dense struct {
	Kernel     [][]float32
	Bias       []float32
	Activation string // "", "relu", "sigmoid", "tanh"
}

// Spec describes a feed-forward classifier over [N,2] inputs.
type Spec struct {
	InputName string
	Layers    []Dense
	// Fused emits _FusedMatMul nodes the way the tfjs converter does.
	Fused bool
	// NoSignature omits the signature block so inputs/outputs are inferred.
	NoSignature bool
	// Squeeze makes the output rank 1 ([N] instead of [N,1]).
	Squeeze bool
}

// Logistic is sigmoid(w0*x + w1*y + b).
func Logistic(w0, w1, b float32) Spec {
	return Spec{
		InputName: "dense_input",
		Layers: []Dense{{
			Kernel:     [][]float32{{w0}, {w1}},
			Bias:       []float32{b},
			Activation: "sigmoid",
		}},
	}
}

// MLP is a 2-4-1 network with a relu hidden layer and sigmoid output.
func MLP() Spec {
	return Spec{
		InputName: "dense_input",
		Fused:     true,
		Layers: []Dense{
			{
				Kernel:     [][]float32{{1, -1, 0.5, -0.5}, {1, 1, -0.5, 0.25}},
				Bias:       []float32{0, 0.1, 0, -0.1},
				Activation: "relu",
			},
			{
				Kernel:     [][]float32{{0.8}, {-0.6}, {0.3}, {0.2}},
				Bias:       []float32{-0.2},
				Activation: "sigmoid",
			},
		},
	}
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func boolAttr(b bool) graphmodel.Attr { return graphmodel.Attr{B: &b} }

func dims(d ...int64) *graphmodel.Shape {
	s := &graphmodel.Shape{}
	for _, v := range d {
		s.Dim = append(s.Dim, graphmodel.Dim{Size: graphmodel.Int64(v)})
	}
	return s
}

var activationOps = map[string]string{"relu": "Relu", "sigmoid": "Sigmoid", "tanh": "Tanh"}

// Build returns the model.json and shard bytes for s.
func Build(s Spec) ([]byte, []byte, error) {
	if s.InputName == "" {
		s.InputName = "dense_input"
	}
	if len(s.Layers) == 0 {
		return nil, nil, fmt.Errorf("graphmodeltest: no layers")
	}
	m := graphmodel.Model{Format: "graph-model", GeneratedBy: "2.15.0", ConvertedBy: "TensorFlow.js Converter v4.17.0"}
	nodes := []graphmodel.Node{{
		Name: s.InputName,
		Op:   "Placeholder",
		Attr: map[string]graphmodel.Attr{
			"dtype": {Type: "DT_FLOAT"},
			"shape": {Shape: dims(-1, 2)},
		},
	}}
	group := graphmodel.WeightGroup{Paths: []string{ShardName}}
	var shard []byte
	appendF32 := func(v float32) {
		shard = binary.LittleEndian.AppendUint32(shard, math.Float32bits(v))
	}

	prev := s.InputName
	in := 2
	for i, l := range s.Layers {
		if len(l.Kernel) != in {
			return nil, nil, fmt.Errorf("graphmodeltest: layer %d expects %d kernel rows, got %d", i, in, len(l.Kernel))
		}
		out := len(l.Bias)
		prefix := fmt.Sprintf("StatefulPartitionedCall/sequential/dense_%d", i)
		kName := prefix + "/MatMul/ReadVariableOp"
		bName := prefix + "/BiasAdd/ReadVariableOp"
		nodes = append(nodes,
			graphmodel.Node{Name: kName, Op: "Const", Attr: map[string]graphmodel.Attr{"dtype": {Type: "DT_FLOAT"}}},
			graphmodel.Node{Name: bName, Op: "Const", Attr: map[string]graphmodel.Attr{"dtype": {Type: "DT_FLOAT"}}},
		)
		group.Weights = append(group.Weights,
			graphmodel.WeightSpec{Name: kName, Shape: []int{in, out}, Dtype: "float32"},
			graphmodel.WeightSpec{Name: bName, Shape: []int{out}, Dtype: "float32"},
		)
		for _, row := range l.Kernel {
			if len(row) != out {
				return nil, nil, fmt.Errorf("graphmodeltest: layer %d kernel width %d, bias %d", i, len(row), out)
			}
			for _, v := range row {
				appendF32(v)
			}
		}
		for _, v := range l.Bias {
			appendF32(v)
		}

		act, hasAct := activationOps[l.Activation]
		if l.Activation != "" && !hasAct {
			return nil, nil, fmt.Errorf("graphmodeltest: unknown activation %q", l.Activation)
		}
		if s.Fused && (l.Activation == "" || l.Activation == "relu") {
			ops := []string{b64("BiasAdd")}
			name := prefix + "/BiasAdd"
			if l.Activation == "relu" {
				ops = append(ops, b64("Relu"))
				name = prefix + "/Relu"
			}
			nodes = append(nodes, graphmodel.Node{
				Name:  name,
				Op:    "_FusedMatMul",
				Input: []string{prev, kName, bName},
				Attr: map[string]graphmodel.Attr{
					"transpose_a": boolAttr(false),
					"transpose_b": boolAttr(false),
					"fused_ops":   {List: &graphmodel.AttrList{S: ops}},
					"num_args":    {I: ptrInt(1)},
					"T":           {Type: "DT_FLOAT"},
				},
			})
			prev = name
		} else {
			mm := prefix + "/MatMul"
			ba := prefix + "/BiasAdd"
			nodes = append(nodes,
				graphmodel.Node{Name: mm, Op: "MatMul", Input: []string{prev, kName}, Attr: map[string]graphmodel.Attr{
					"transpose_a": boolAttr(false),
					"transpose_b": boolAttr(false),
				}},
				graphmodel.Node{Name: ba, Op: "BiasAdd", Input: []string{mm, bName}, Attr: map[string]graphmodel.Attr{
					"data_format": {S: b64("NHWC")},
				}},
			)
			prev = ba
			if hasAct {
				an := prefix + "/" + act
				nodes = append(nodes, graphmodel.Node{Name: an, Op: act, Input: []string{prev}})
				prev = an
			}
		}
		in = out
	}
	if s.Squeeze {
		sq := "StatefulPartitionedCall/sequential/squeeze"
		nodes = append(nodes, graphmodel.Node{Name: sq, Op: "Squeeze", Input: []string{prev}, Attr: map[string]graphmodel.Attr{
			"squeeze_dims": {List: &graphmodel.AttrList{I: []graphmodel.Int64{1}}},
		}})
		prev = sq
	}
	nodes = append(nodes, graphmodel.Node{Name: "Identity", Op: "Identity", Input: []string{prev}})

	m.Topology.Node = nodes
	m.WeightsManifest = []graphmodel.WeightGroup{group}
	if !s.NoSignature {
		outShape := dims(-1, int64(in))
		if s.Squeeze {
			outShape = dims(-1)
		}
		m.Signature = &graphmodel.Signature{
			Inputs:  graphmodel.OrderedTensorInfos{{Key: s.InputName, Name: s.InputName + ":0", Dtype: "DT_FLOAT", TensorShape: dims(-1, 2)}},
			Outputs: graphmodel.OrderedTensorInfos{{Key: "output_0", Name: "Identity:0", Dtype: "DT_FLOAT", TensorShape: outShape}},
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, shard, nil
}

func ptrInt(v int64) *graphmodel.Int64 {
	i := graphmodel.Int64(v)
	return &i
}

// Write stores model.json and its shard in dir and returns the model.json path.
func Write(dir string, s Spec) (string, error) {
	mj, shard, err := Build(s)
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, "model.json")
	if err := os.WriteFile(p, mj, 0o644); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, ShardName), shard, 0o644); err != nil {
		return "", err
	}
	return p, nil
}
