//go:build !onnx && !tensorflow

package backend_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointd/internal/backend"
)

func TestStubBackendsUnavailable(t *testing.T) {
	for name, entry := range map[string]string{"onnx": "model.onnx", "tensorflow": "model.pb"} {
		b, err := backend.New(name, backend.Options{})
		require.NoError(t, err)
		assert.Equal(t, entry, b.DefaultEntry())
		err = b.Init(context.Background())
		assert.True(t, backend.IsDependencyUnavailable(err), "%s: %v", name, err)
		_, err = b.NewTensor([]int{1, 2}, []float32{0, 0})
		assert.Error(t, err)
		assert.Equal(t, 0, b.NumTensors())
	}
}
