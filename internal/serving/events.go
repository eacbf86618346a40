package serving

// Event is a model lifecycle event. LoadID ties together the events of one
// Loader.Load call.
type Event struct {
	Name   string
	LoadID string
	Fields map[string]any
}

const (
	EventLoadStart    = "load_start"
	EventBackendReady = "backend_ready"
	EventGraphLoaded  = "graph_loaded"
	EventWarmupDone   = "warmup_done"
	EventReady        = "ready"
	EventLoadFailed   = "load_failed"
)

// EventPublisher receives lifecycle events. Publish must not block or panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
