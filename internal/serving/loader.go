package serving

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pointd/internal/artifact"
	"pointd/internal/backend"
)

// LoaderConfig selects the backend and the artifact to load.
type LoaderConfig struct {
	Backend        string
	BackendOptions backend.Options
	// ModelURL is an http(s) URL or a filesystem path to the entry file.
	// When empty the entry is fetched from StoreURL.
	ModelURL string
	// ModelEntry overrides the backend's default entry file name.
	ModelEntry string
	// StoreURL is the base URL of this process's artifact store.
	StoreURL string
	Client   *http.Client
}

// Loader performs the one-shot startup load.
type Loader struct {
	cfg    LoaderConfig
	gate   *Gate
	events EventPublisher
	log    zerolog.Logger
}

// NewLoader returns a loader that publishes into gate. A nil publisher drops
// events.
func NewLoader(cfg LoaderConfig, gate *Gate, events EventPublisher, log zerolog.Logger) *Loader {
	if events == nil {
		events = noopPublisher{}
	}
	return &Loader{cfg: cfg, gate: gate, events: events, log: log}
}

// Location returns the artifact location the loader will read for b.
func (l *Loader) Location(b backend.Backend) string {
	if l.cfg.ModelURL != "" {
		return l.cfg.ModelURL
	}
	entry := l.cfg.ModelEntry
	if entry == "" {
		entry = b.DefaultEntry()
	}
	return artifact.URL(l.cfg.StoreURL, entry)
}

// Load runs every stage and publishes the handle. On failure the gate is
// flipped to failed and a *LoadError is returned; the caller is expected to
// terminate the process.
func (l *Loader) Load(ctx context.Context) (*Handle, error) {
	start := time.Now()
	loadID := uuid.NewString()
	log := l.log.With().Str("load_id", loadID).Str("backend", l.cfg.Backend).Logger()
	emit := func(name string, fields map[string]any) {
		l.events.Publish(Event{Name: name, LoadID: loadID, Fields: fields})
	}

	emit(EventLoadStart, map[string]any{"backend": l.cfg.Backend})
	log.Info().Msg("model load start")

	h, err := l.load(ctx, log, emit)
	dur := time.Since(start)
	if err != nil {
		l.gate.Fail(err)
		modelLoadDuration.WithLabelValues("failed").Set(dur.Seconds())
		emit(EventLoadFailed, map[string]any{"error": err.Error()})
		log.Error().Err(err).Dur("dur", dur).Msg("model load failed")
		return nil, err
	}
	if !l.gate.Publish(h) {
		_ = h.Close()
		return nil, fmt.Errorf("load model: gate already %s", l.gate.Describe().State)
	}
	modelLoadDuration.WithLabelValues("ok").Set(dur.Seconds())
	emit(EventReady, map[string]any{"duration_ms": dur.Milliseconds()})
	log.Info().
		Str("input", h.InputName).
		Str("output", h.OutputName).
		Dur("dur", dur).
		Msg("model ready")
	return h, nil
}

func (l *Loader) load(ctx context.Context, log zerolog.Logger, emit func(string, map[string]any)) (*Handle, error) {
	b, err := backend.New(l.cfg.Backend, l.cfg.BackendOptions)
	if err != nil {
		return nil, &LoadError{Stage: StageBackendInit, Err: err}
	}
	if err := b.Init(ctx); err != nil {
		_ = b.Close()
		return nil, &LoadError{Stage: StageBackendInit, Err: err}
	}
	l.gate.SetBackend(b.Name())
	emit(EventBackendReady, map[string]any{"backend": b.Name()})
	log.Info().Msg("backend ready")

	loc := l.Location(b)
	src, err := artifact.Resolve(loc, l.cfg.Client)
	if err != nil {
		_ = b.Close()
		return nil, &LoadError{Stage: StageGraphLoad, Err: err}
	}
	log.Info().Str("artifact", src.Location()).Msg("loading graph")
	g, err := b.LoadGraph(ctx, src)
	if err != nil {
		_ = b.Close()
		return nil, &LoadError{Stage: StageGraphLoad, Err: err}
	}
	h := &Handle{Graph: g, Backend: b, BackendID: b.Name()}
	ins, outs := g.Inputs(), g.Outputs()
	if len(ins) == 0 || len(outs) == 0 {
		_ = h.Close()
		return nil, &LoadError{Stage: StageGraphLoad, Err: fmt.Errorf("graph declares %d inputs and %d outputs", len(ins), len(outs))}
	}
	if len(ins) > 1 {
		log.Warn().Int("inputs", len(ins)).Msg("graph has several inputs, feeding the first")
	}
	h.InputName, h.OutputName = ins[0].Name, outs[0].Name
	emit(EventGraphLoaded, map[string]any{"artifact": src.Location(), "input": h.InputName, "output": h.OutputName})

	if err := warmup(ctx, h); err != nil {
		_ = h.Close()
		return nil, &LoadError{Stage: StageWarmup, Err: err}
	}
	emit(EventWarmupDone, nil)
	log.Debug().Int("live_tensors", b.NumTensors()).Msg("warm-up done")
	return h, nil
}
