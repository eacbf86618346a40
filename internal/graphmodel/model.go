// Package graphmodel reads the tfjs "graph-model" artifact format: a
// model.json holding a GraphDef topology, an optional signature and a
// weights manifest that points at one or more binary shards.
package graphmodel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoTopology is returned for a model.json without graph nodes.
var ErrNoTopology = errors.New("graphmodel: model has no topology")

// Model is a parsed model.json.
type Model struct {
	Format          string        `json:"format"`
	GeneratedBy     string        `json:"generatedBy"`
	ConvertedBy     string        `json:"convertedBy"`
	Topology        Topology      `json:"modelTopology"`
	Signature       *Signature    `json:"signature,omitempty"`
	WeightsManifest []WeightGroup `json:"weightsManifest"`
}

// Topology is the GraphDef part of the artifact.
type Topology struct {
	Node []Node `json:"node"`
}

// Node is a single GraphDef node.
type Node struct {
	Name  string          `json:"name"`
	Op    string          `json:"op"`
	Input []string        `json:"input,omitempty"`
	Attr  map[string]Attr `json:"attr,omitempty"`
}

// Attr is the subset of AttrValue the executor understands.
type Attr struct {
	B     *bool     `json:"b,omitempty"`
	I     *Int64    `json:"i,omitempty"`
	F     *float64  `json:"f,omitempty"`
	S     string    `json:"s,omitempty"`
	Type  string    `json:"type,omitempty"`
	Shape *Shape    `json:"shape,omitempty"`
	List  *AttrList `json:"list,omitempty"`
}

// AttrList holds repeated attribute values.
type AttrList struct {
	I []Int64   `json:"i,omitempty"`
	F []float64 `json:"f,omitempty"`
	S []string  `json:"s,omitempty"`
}

// Shape is a TensorShapeProto.
type Shape struct {
	Dim         []Dim `json:"dim,omitempty"`
	UnknownRank bool  `json:"unknownRank,omitempty"`
}

// Dim is one dimension; -1 means unknown.
type Dim struct {
	Size Int64 `json:"size"`
}

// Dims returns the dimension sizes, nil for an unknown rank.
func (s *Shape) Dims() []int64 {
	if s == nil || s.UnknownRank {
		return nil
	}
	out := make([]int64, len(s.Dim))
	for i, d := range s.Dim {
		out[i] = int64(d.Size)
	}
	return out
}

// Int64 accepts both JSON numbers and the quoted form protobuf emits for
// 64-bit integers.
type Int64 int64

func (v *Int64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*v = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("graphmodel: invalid int64 %s", b)
	}
	*v = Int64(n)
	return nil
}

// Signature lists the graph's declared inputs and outputs in file order.
type Signature struct {
	Inputs  OrderedTensorInfos `json:"inputs"`
	Outputs OrderedTensorInfos `json:"outputs"`
}

// TensorInfo describes a signature entry.
type TensorInfo struct {
	Key         string `json:"-"`
	Name        string `json:"name"`
	Dtype       string `json:"dtype"`
	TensorShape *Shape `json:"tensorShape,omitempty"`
}

// OrderedTensorInfos is a JSON object decoded with its key order kept, since
// the first declared input/output is significant.
type OrderedTensorInfos []TensorInfo

func (o *OrderedTensorInfos) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*o = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("graphmodel: signature entries must be an object")
	}
	var out OrderedTensorInfos
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := kt.(string)
		var ti TensorInfo
		if err := dec.Decode(&ti); err != nil {
			return fmt.Errorf("graphmodel: signature %q: %w", key, err)
		}
		ti.Key = key
		if ti.Name == "" {
			ti.Name = key
		}
		out = append(out, ti)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = out
	return nil
}

func (o OrderedTensorInfos) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ti := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key := ti.Key
		if key == "" {
			key = ti.Name
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(ti)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// WeightGroup is one manifest entry: shards concatenated in order hold the
// listed weights back to back.
type WeightGroup struct {
	Paths   []string     `json:"paths"`
	Weights []WeightSpec `json:"weights"`
}

// WeightSpec describes one weight inside a group.
type WeightSpec struct {
	Name         string        `json:"name"`
	Shape        []int         `json:"shape"`
	Dtype        string        `json:"dtype"`
	Quantization *Quantization `json:"quantization,omitempty"`
}

// Quantization describes affine-quantized weights.
type Quantization struct {
	Dtype string  `json:"dtype"`
	Min   float64 `json:"min"`
	Scale float64 `json:"scale"`
}

// Parse decodes and sanity-checks a model.json.
func Parse(b []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("graphmodel: decode model.json: %w", err)
	}
	if m.Format != "" && m.Format != "graph-model" {
		return nil, fmt.Errorf("graphmodel: unsupported format %q", m.Format)
	}
	if len(m.Topology.Node) == 0 {
		return nil, ErrNoTopology
	}
	seen := make(map[string]struct{}, len(m.Topology.Node))
	for _, n := range m.Topology.Node {
		if n.Name == "" {
			return nil, fmt.Errorf("graphmodel: node with empty name (op %s)", n.Op)
		}
		if _, dup := seen[n.Name]; dup {
			return nil, fmt.Errorf("graphmodel: duplicate node %q", n.Name)
		}
		seen[n.Name] = struct{}{}
	}
	return &m, nil
}

// NodeName strips a ":<index>" output suffix and a leading "^" control marker.
func NodeName(ref string) string {
	ref = strings.TrimPrefix(ref, "^")
	if i := strings.LastIndexByte(ref, ':'); i >= 0 {
		if _, err := strconv.Atoi(ref[i+1:]); err == nil {
			return ref[:i]
		}
	}
	return ref
}

// Inputs returns the declared graph inputs: the signature inputs when
// present, otherwise Placeholder nodes in topology order.
func (m *Model) Inputs() []TensorInfo {
	if m.Signature != nil && len(m.Signature.Inputs) > 0 {
		out := make([]TensorInfo, len(m.Signature.Inputs))
		for i, ti := range m.Signature.Inputs {
			ti.Name = NodeName(ti.Name)
			out[i] = ti
		}
		return out
	}
	var out []TensorInfo
	for _, n := range m.Topology.Node {
		if n.Op != "Placeholder" {
			continue
		}
		ti := TensorInfo{Key: n.Name, Name: n.Name}
		if a, ok := n.Attr["dtype"]; ok {
			ti.Dtype = a.Type
		}
		if a, ok := n.Attr["shape"]; ok {
			ti.TensorShape = a.Shape
		}
		out = append(out, ti)
	}
	return out
}

// Outputs returns the declared graph outputs: the signature outputs when
// present, otherwise nodes nothing else consumes, in topology order.
func (m *Model) Outputs() []TensorInfo {
	if m.Signature != nil && len(m.Signature.Outputs) > 0 {
		out := make([]TensorInfo, len(m.Signature.Outputs))
		for i, ti := range m.Signature.Outputs {
			ti.Name = NodeName(ti.Name)
			out[i] = ti
		}
		return out
	}
	consumed := make(map[string]bool)
	for _, n := range m.Topology.Node {
		for _, in := range n.Input {
			consumed[NodeName(in)] = true
		}
	}
	var out []TensorInfo
	for _, n := range m.Topology.Node {
		switch n.Op {
		case "Const", "NoOp", "Placeholder":
			continue
		}
		if !consumed[n.Name] {
			out = append(out, TensorInfo{Key: n.Name, Name: n.Name})
		}
	}
	return out
}
