package types

import "encoding/json"

// PredictRequest is the payload accepted by POST /predict.
//
// Fields are kept raw so the serving layer can tell an absent field from a
// null or malformed one.
type PredictRequest struct {
	// A single [x,y] pair or a list of pairs.
	// example: [[0,0],[10,10]]
	Points json.RawMessage `json:"points" swaggertype:"array,number" example:"0,0"`
	// Decision threshold applied to each probability. Defaults to 0.5.
	// example: 0.3
	Threshold json.RawMessage `json:"threshold,omitempty" swaggertype:"number" example:"0.3"`
}

// PredictResponse is returned by POST /predict on success.
type PredictResponse struct {
	// Number of points in the batch.
	// example: 2
	N int `json:"n" example:"2"`
	// Probability per input point, in input order.
	Probs []float64 `json:"probs"`
	// Thresholded class per input point (0 or 1), in input order.
	Classes []int `json:"classes"`
	// Threshold that was applied.
	// example: 0.5
	Threshold float64 `json:"threshold" example:"0.5"`
	// Execution backend identifier.
	// example: gonum
	Backend string `json:"backend" example:"gonum"`
	// Graph input tensor name.
	// example: dense_input
	InputName string `json:"inputName" example:"dense_input"`
	// Graph output tensor name.
	// example: Identity
	OutputName string `json:"outputName" example:"Identity"`
}

// HealthResponse is returned by GET /health. Unknown values are null.
type HealthResponse struct {
	// True once the model is loaded and warmed up.
	OK bool `json:"ok"`
	// Execution backend identifier, known once the backend is initialized.
	// example: gonum
	Backend *string `json:"backend" example:"gonum"`
	// True once a model handle has been published.
	ModelLoaded bool `json:"modelLoaded"`
	// example: dense_input
	InputName *string `json:"inputName" example:"dense_input"`
	// example: Identity
	OutputName *string `json:"outputName" example:"Identity"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
