package serving

import (
	"context"
	"fmt"
	"strconv"

	"pointd/internal/backend"
)

// execute runs one [n,2] batch through h and returns the first output as n
// probabilities. Every tensor created here is released before returning, and a
// panic in the backend or in decoding becomes an internal ExecutionError.
func execute(ctx context.Context, h *Handle, points []float32, n int) (probs []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			probs, err = nil, &ExecutionError{Kind: KindInternal, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	var scope tensorScope
	defer scope.release()

	x, err := h.Backend.NewTensor([]int{n, 2}, points)
	if err != nil {
		return nil, &ExecutionError{Kind: KindInternal, Err: fmt.Errorf("build input: %w", err)}
	}
	scope.add(x)

	outs, err := h.Graph.Execute(ctx, map[string]backend.Tensor{h.InputName: x})
	scope.add(outs...)
	if err != nil {
		return nil, &ExecutionError{Kind: KindInternal, Err: err}
	}
	if len(outs) == 0 {
		return nil, &ExecutionError{Kind: KindUnexpectedOutputShape, Err: fmt.Errorf("graph returned no outputs")}
	}
	return decodeProbs(outs[0], n)
}

// decodeProbs accepts [n,1] and [n] outputs.
func decodeProbs(out backend.Tensor, n int) ([]float32, error) {
	shape := out.Shape()
	switch {
	case len(shape) == 2 && shape[0] == n && shape[1] == 1:
	case len(shape) == 1 && shape[0] == n:
	default:
		return nil, &ExecutionError{Kind: KindUnexpectedOutputShape, Err: fmt.Errorf("output shape %v for %d points", shape, n)}
	}
	data, err := out.Data()
	if err != nil {
		return nil, &ExecutionError{Kind: KindInternal, Err: fmt.Errorf("read output: %w", err)}
	}
	if len(data) != n {
		return nil, &ExecutionError{Kind: KindUnexpectedOutputShape, Err: fmt.Errorf("output has %d values for %d points", len(data), n)}
	}
	return data, nil
}

// reported converts each float32 probability to the float64 its shortest
// decimal form denotes, so the value on the wire is the value classified.
func reported(probs []float32) []float64 {
	out := make([]float64, len(probs))
	for i, p := range probs {
		v, err := strconv.ParseFloat(strconv.FormatFloat(float64(p), 'g', -1, 32), 64)
		if err != nil {
			v = float64(p)
		}
		out[i] = v
	}
	return out
}

// classify maps each probability to 1 when it is at or above threshold.
func classify(probs []float64, threshold float64) []int {
	out := make([]int, len(probs))
	for i, p := range probs {
		if p >= threshold {
			out[i] = 1
		}
	}
	return out
}

// warmup executes a single zero point and discards the result.
func warmup(ctx context.Context, h *Handle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	var scope tensorScope
	defer scope.release()
	x, err := h.Backend.NewTensor([]int{1, 2}, []float32{0, 0})
	if err != nil {
		return err
	}
	scope.add(x)
	outs, err := h.Graph.Execute(ctx, map[string]backend.Tensor{h.InputName: x})
	scope.add(outs...)
	return err
}
