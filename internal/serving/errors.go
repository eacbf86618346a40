package serving

import (
	"errors"
	"fmt"
	"net/http"
)

// Stage names the loader step that failed.
type Stage string

const (
	StageBackendInit Stage = "backend_init"
	StageGraphLoad   Stage = "graph_load"
	StageWarmup      Stage = "warmup"
)

// LoadError is fatal: the process cannot serve without a model.
type LoadError struct {
	Stage Stage
	Err   error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load model (%s): %v", e.Stage, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// IsLoad reports whether err is a LoadError.
func IsLoad(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// NotReadyError is returned while the model is still loading (503).
type NotReadyError struct{}

func (NotReadyError) Error() string   { return "model not loaded" }
func (NotReadyError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrNotReady is the NotReadyError value.
var ErrNotReady error = NotReadyError{}

// IsNotReady reports whether err means the model is not ready yet.
func IsNotReady(err error) bool {
	var nr NotReadyError
	return errors.As(err, &nr)
}

// Reason classifies a ValidationError.
type Reason string

const (
	ReasonMissingField     Reason = "missing_field"
	ReasonInvalidPoint     Reason = "invalid_point"
	ReasonInvalidThreshold Reason = "invalid_threshold"
)

// ValidationError rejects a request before any backend work (400). Index is
// the offending point for invalid_point and -1 otherwise.
type ValidationError struct {
	Reason Reason
	Index  int
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonMissingField:
		return `missing "points"`
	case ReasonInvalidThreshold:
		return "threshold must be a finite number"
	default:
		return "each point must be a numeric [x,y] pair"
	}
}

func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ExecutionKind classifies an ExecutionError.
type ExecutionKind string

const (
	KindInternal              ExecutionKind = "internal"
	KindUnexpectedOutputShape ExecutionKind = "unexpected_output_shape"
)

// ExecutionError is a backend or decode failure (500). Error carries the
// detail for logs; clients only see a generic message.
type ExecutionError struct {
	Kind ExecutionKind
	Err  error
}

func (e *ExecutionError) Error() string   { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *ExecutionError) Unwrap() error   { return e.Err }
func (e *ExecutionError) StatusCode() int { return http.StatusInternalServerError }

// IsExecution reports whether err is an ExecutionError.
func IsExecution(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}
