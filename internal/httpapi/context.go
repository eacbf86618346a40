package httpapi

import (
	"context"
	"errors"
)

// errShuttingDown is the cancellation cause of predictions cut short by
// server shutdown.
var errShuttingDown = errors.New("server shutting down")

// serverBaseCtx ends when the process begins shutting down.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level context that in-flight predictions
// observe. nil resets it to Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts derives from req, keeping its values, and also ends when base
// is done. The returned cancel must be called when the handler returns.
func joinContexts(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(req)
	if base.Err() != nil {
		cancel(errShuttingDown)
	}
	stop := context.AfterFunc(base, func() { cancel(errShuttingDown) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
