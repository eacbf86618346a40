//go:build !onnx

package backend

// OnnxName is the registry name of the onnxruntime backend.
const OnnxName = "onnx"

func init() {
	Register(OnnxName, func(Options) Backend {
		return unavailableBackend{
			name:   OnnxName,
			entry:  "model.onnx",
			reason: "onnx support not built (missing 'onnx' build tag)",
		}
	})
}
