// Package serving owns the model lifecycle and the prediction path. It is
// split into small files by concern:
//
//   - types.go: State, Handle, Description and Result.
//   - errors.go: error types and helpers (IsNotReady, IsValidation, IsExecution, IsLoad).
//   - gate.go: Gate, the lock-free readiness state and published handle.
//   - loader.go: Loader, which initializes the backend, loads the graph, runs
//     the warm-up and publishes the handle.
//   - request.go: decoding and validation of the points/threshold payload.
//   - scope.go: tensorScope, per-call tensor release.
//   - predict.go: tensor construction, execution and output decoding.
//   - service.go: Service, the httpapi.Service implementation.
//   - events.go, eventpub_memory.go: lifecycle events.
//   - metrics.go: Prometheus collectors.
//
// There is no package-level model state; the Gate is the only place a loaded
// model is reachable from.
package serving
