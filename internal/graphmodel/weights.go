package graphmodel

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// Weight is a decoded constant. Values are widened to float64; int32 and
// bool weights (shapes, axes) are exact in that representation.
type Weight struct {
	Name   string
	Shape  []int
	Values []float64
}

// ReadFunc returns the bytes of a shard path relative to model.json.
type ReadFunc func(ctx context.Context, path string) ([]byte, error)

// LoadWeights fetches every shard and decodes the manifest into weights
// keyed by name.
func (m *Model) LoadWeights(ctx context.Context, read ReadFunc) (map[string]Weight, error) {
	out := make(map[string]Weight)
	for gi, g := range m.WeightsManifest {
		var buf bytes.Buffer
		for _, p := range g.Paths {
			b, err := read(ctx, p)
			if err != nil {
				return nil, fmt.Errorf("graphmodel: read shard %s: %w", p, err)
			}
			buf.Write(b)
		}
		data := buf.Bytes()
		off := 0
		for _, spec := range g.Weights {
			w, n, err := decodeWeight(spec, data[off:])
			if err != nil {
				return nil, fmt.Errorf("graphmodel: group %d weight %q: %w", gi, spec.Name, err)
			}
			off += n
			out[spec.Name] = w
		}
		if off != len(data) {
			return nil, fmt.Errorf("graphmodel: group %d: %d trailing bytes", gi, len(data)-off)
		}
	}
	return out, nil
}

func numElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension %d", d)
		}
		n *= d
	}
	return n, nil
}

func decodeWeight(spec WeightSpec, b []byte) (Weight, int, error) {
	n, err := numElements(spec.Shape)
	if err != nil {
		return Weight{}, 0, err
	}
	w := Weight{Name: spec.Name, Shape: append([]int(nil), spec.Shape...), Values: make([]float64, n)}
	le := binary.LittleEndian

	if q := spec.Quantization; q != nil {
		switch q.Dtype {
		case "uint8":
			if len(b) < n {
				return Weight{}, 0, fmt.Errorf("short shard: need %d bytes, have %d", n, len(b))
			}
			for i := 0; i < n; i++ {
				w.Values[i] = float64(b[i])*q.Scale + q.Min
			}
			return w, n, nil
		case "uint16":
			if len(b) < 2*n {
				return Weight{}, 0, fmt.Errorf("short shard: need %d bytes, have %d", 2*n, len(b))
			}
			for i := 0; i < n; i++ {
				w.Values[i] = float64(le.Uint16(b[2*i:]))*q.Scale + q.Min
			}
			return w, 2 * n, nil
		default:
			return Weight{}, 0, fmt.Errorf("unsupported quantization dtype %q", q.Dtype)
		}
	}

	switch spec.Dtype {
	case "float32", "":
		if len(b) < 4*n {
			return Weight{}, 0, fmt.Errorf("short shard: need %d bytes, have %d", 4*n, len(b))
		}
		for i := 0; i < n; i++ {
			w.Values[i] = float64(math.Float32frombits(le.Uint32(b[4*i:])))
		}
		return w, 4 * n, nil
	case "int32":
		if len(b) < 4*n {
			return Weight{}, 0, fmt.Errorf("short shard: need %d bytes, have %d", 4*n, len(b))
		}
		for i := 0; i < n; i++ {
			w.Values[i] = float64(int32(le.Uint32(b[4*i:])))
		}
		return w, 4 * n, nil
	case "bool":
		if len(b) < n {
			return Weight{}, 0, fmt.Errorf("short shard: need %d bytes, have %d", n, len(b))
		}
		for i := 0; i < n; i++ {
			if b[i] != 0 {
				w.Values[i] = 1
			}
		}
		return w, n, nil
	default:
		return Weight{}, 0, fmt.Errorf("unsupported dtype %q", spec.Dtype)
	}
}
