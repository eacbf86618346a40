package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pointd/internal/artifact"
	"pointd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Health() types.HealthResponse
	Predict(ctx context.Context, req types.PredictRequest) (types.PredictResponse, error)
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: orDefault(corsAllowedOrigins, []string{"*"}),
			AllowedMethods: orDefault(corsAllowedMethods, []string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			AllowedHeaders: orDefault(corsAllowedHeaders, []string{"Content-Type"}),
			MaxAge:         300,
		}))
	}

	// @Summary      Model readiness and tensor names
	// @Description  Never blocks. String fields are null until known.
	// @Tags         model
	// @Produce      json
	// @Success      200  {object}  types.HealthResponse
	// @Router       /health [get]
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Health())
	})

	// @Summary      Classify 2-D points
	// @Description  Accepts a single [x,y] pair or a list of pairs and an optional threshold (default 0.5).
	// @Tags         model
	// @Accept       json
	// @Produce      json
	// @Param        request  body      types.PredictRequest  true  "points and threshold"
	// @Success      200      {object}  types.PredictResponse
	// @Failure      400      {object}  types.ErrorResponse
	// @Failure      500      {object}  types.ErrorResponse
	// @Failure      503      {object}  types.ErrorResponse
	// @Router       /predict [post]
	r.Post("/predict", func(w http.ResponseWriter, r *http.Request) {
		// Readiness is checked before the request is inspected.
		if !svc.Ready() {
			writeJSONError(w, http.StatusServiceUnavailable, "model not loaded")
			return
		}
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusBadRequest, "Content-Type must be application/json")
			return
		}
		// Limit body size (configurable, default 1MiB)
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.PredictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			// Oversized bodies also land here; keep the 400 without size details.
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		start := time.Now()
		lvl := requestLogLevel(r)
		rid := middleware.GetReqID(r.Context())
		if lvl >= LevelDebug {
			logf(rid, "predict start", "path=%s bytes=%d", r.URL.Path, len(req.Points))
		}
		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if d := predictDeadline(); d > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, d)
			defer tcancel()
		}

		resp, err := svc.Predict(ctx, req)
		if err != nil {
			code, msg := statusFor(err)
			writeJSONError(w, code, msg)
			if (lvl >= LevelError && code >= 500) || lvl >= LevelInfo {
				logEnd(rid, code, time.Since(start), err)
			}
			return
		}
		out := io.Writer(w)
		if lvl >= LevelDebug {
			out = io.MultiWriter(w, &loggingLineWriter{})
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(out).Encode(resp)
		if lvl >= LevelInfo {
			logEnd(rid, http.StatusOK, time.Since(start), nil)
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// Artifact store: the model files the loader fetches at startup.
	if artifactDir != "" {
		r.Handle("/model/*", http.StripPrefix("/model", artifact.Handler(artifactDir)))
	}

	MountSwagger(r)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func logf(rid, msg, format string, args ...any) {
	if zlog != nil {
		z := zlog.Info()
		if rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msgf(msg+" "+format, args...)
		return
	}
	log.Printf(msg+" "+format, args...)
}

func logEnd(rid string, status int, dur time.Duration, err error) {
	if zlog != nil {
		z := zlog.Info().Int("status", status).Dur("dur", dur)
		if rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Err(err).Msg("predict end")
		return
	}
	log.Printf("predict end status=%d dur=%s err=%v", status, dur, err)
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}
