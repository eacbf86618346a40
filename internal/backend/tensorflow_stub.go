//go:build !tensorflow

package backend

// TensorflowName is the registry name of the TensorFlow C API backend.
const TensorflowName = "tensorflow"

func init() {
	Register(TensorflowName, func(Options) Backend {
		return unavailableBackend{
			name:   TensorflowName,
			entry:  "model.pb",
			reason: "tensorflow support not built (missing 'tensorflow' build tag)",
		}
	})
}
