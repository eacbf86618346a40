package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"pointd/internal/backend"
	"pointd/internal/common/fsutil"
	"pointd/internal/config"
	"pointd/internal/httpapi"
	"pointd/internal/logging"
	"pointd/internal/serving"
)

const shutdownTimeout = 5 * time.Second

func runServe(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr(), err)
	}
	return serveOn(ctx, ln, cfg, log)
}

// serveOn accepts connections on ln while the model loads in the background.
// It returns nil when ctx is cancelled and the load error when loading fails.
func serveOn(ctx context.Context, ln net.Listener, cfg config.Config, log zerolog.Logger) error {
	dir, err := modelDir(cfg)
	if err != nil {
		_ = ln.Close()
		return err
	}

	httpapi.SetLogger(log)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetPredictTimeoutSeconds(cfg.PredictTimeoutSeconds)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, nil, nil)
	httpapi.SetArtifactDir(dir)
	httpapi.SetBaseContext(ctx)

	gate := serving.NewGate()
	svc := serving.NewService(gate, log)
	defer func() { _ = svc.Close() }()

	srv := &http.Server{
		Handler:           httpapi.NewMux(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	storeURL := storeURLFor(ln.Addr())
	loader := serving.NewLoader(serving.LoaderConfig{
		Backend: cfg.Backend,
		BackendOptions: backend.Options{
			LibraryPath: cfg.ONNXLibraryPath,
			Logger:      log,
		},
		ModelURL:   cfg.ModelURL,
		ModelEntry: cfg.ModelEntry,
		StoreURL:   storeURL,
	}, gate, nil, log)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	log.Info().
		Str("url", "http://"+displayAddr(ln.Addr())).
		Str("backend", cfg.Backend).
		Str("model_dir", dir).
		Str("store", storeURL).
		Msg("pointd listening")

	loadCtx, cancelLoad := context.WithCancel(ctx)
	defer cancelLoad()
	loadErr := make(chan error, 1)
	go func() {
		_, err := loader.Load(loadCtx)
		loadErr <- err
	}()

	var result error
	loaded := false
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			result = fmt.Errorf("serve: %w", err)
		}
	case err := <-loadErr:
		loaded = true
		if err != nil {
			result = err
			break
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("shutdown requested")
		case err := <-serveErr:
			if err != nil {
				result = fmt.Errorf("serve: %w", err)
			}
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	// The loader may still publish a handle; wait so the deferred Close sees it.
	if !loaded {
		cancelLoad()
		<-loadErr
	}
	return result
}

// modelDir resolves the directory served under /model/. It is required unless
// the artifact is loaded from an explicit URL.
func modelDir(cfg config.Config) (string, error) {
	dir, err := fsutil.AbsDir(cfg.ModelDir)
	if err == nil {
		return dir, nil
	}
	if cfg.ModelURL != "" {
		return "", nil
	}
	return "", fmt.Errorf("model dir: %w", err)
}

// storeURLFor is the URL at which this process serves its own artifacts.
// Wildcard listen addresses are reached through loopback.
func storeURLFor(addr net.Addr) string {
	return "http://" + displayAddr(addr) + "/model"
}

func displayAddr(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String()
	}
	host := "127.0.0.1"
	if tcp.IP != nil && !tcp.IP.IsUnspecified() {
		host = tcp.IP.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(tcp.Port))
}

// runCheck loads and warms up the model without serving, printing each load
// event. A relative model URL or the model dir is read straight from disk.
func runCheck(ctx context.Context, cfg config.Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logging.NewWithWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	var store string
	if cfg.ModelURL == "" {
		dir, err := fsutil.AbsDir(cfg.ModelDir)
		if err != nil {
			return fmt.Errorf("model dir: %w", err)
		}
		store = "file://" + dir
	}
	events := serving.NewMemoryPublisher()
	gate := serving.NewGate()
	loader := serving.NewLoader(serving.LoaderConfig{
		Backend: cfg.Backend,
		BackendOptions: backend.Options{
			LibraryPath: cfg.ONNXLibraryPath,
			Logger:      log,
		},
		ModelURL:   cfg.ModelURL,
		ModelEntry: cfg.ModelEntry,
		StoreURL:   store,
	}, gate, events, log)

	h, err := loader.Load(ctx)
	for _, e := range events.Events() {
		fmt.Fprintf(out, "%-14s %v\n", e.Name, e.Fields)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "ok: backend=%s input=%s output=%s\n", h.BackendID, h.InputName, h.OutputName)
	return h.Close()
}
