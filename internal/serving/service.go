package serving

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pointd/pkg/types"
)

// Service implements the HTTP surface's Service interface on top of a Gate.
type Service struct {
	gate *Gate
	log  zerolog.Logger
}

// NewService returns a service reading from gate.
func NewService(gate *Gate, log zerolog.Logger) *Service {
	return &Service{gate: gate, log: log}
}

func (s *Service) Gate() *Gate { return s.gate }

func (s *Service) Ready() bool { return s.gate.Ready() }

// Health never blocks; unknown names are reported as null.
func (s *Service) Health() types.HealthResponse {
	d := s.gate.Describe()
	return types.HealthResponse{
		OK:          d.Ready,
		Backend:     strOrNil(d.Backend),
		ModelLoaded: d.ModelLoaded,
		InputName:   strOrNil(d.InputName),
		OutputName:  strOrNil(d.OutputName),
	}
}

func strOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Predict validates req, runs the batch and thresholds the probabilities.
// Validation failures never reach the backend.
func (s *Service) Predict(ctx context.Context, req types.PredictRequest) (types.PredictResponse, error) {
	h, ok := s.gate.Handle()
	if !ok {
		predictionsTotal.WithLabelValues(outcomeNotReady).Inc()
		return types.PredictResponse{}, ErrNotReady
	}
	res, n, err := s.predict(ctx, h, req)
	liveTensors.WithLabelValues(h.BackendID).Set(float64(h.Backend.NumTensors()))
	if err != nil {
		if IsValidation(err) {
			predictionsTotal.WithLabelValues(outcomeInvalid).Inc()
		} else {
			predictionsTotal.WithLabelValues(outcomeError).Inc()
		}
		return types.PredictResponse{}, err
	}
	predictionsTotal.WithLabelValues(outcomeOK).Inc()
	predictionBatchSize.Observe(float64(n))
	return types.PredictResponse{
		N:          n,
		Probs:      res.Probs,
		Classes:    res.Classes,
		Threshold:  res.Threshold,
		Backend:    h.BackendID,
		InputName:  h.InputName,
		OutputName: h.OutputName,
	}, nil
}

func (s *Service) predict(ctx context.Context, h *Handle, req types.PredictRequest) (*Result, int, error) {
	points, n, err := parsePoints(req.Points)
	if err != nil {
		return nil, 0, err
	}
	threshold, err := parseThreshold(req.Threshold)
	if err != nil {
		return nil, 0, err
	}
	start := time.Now()
	probs, err := execute(ctx, h, points, n)
	if err != nil {
		s.log.Error().Err(err).Int("n", n).Msg("prediction failed")
		return nil, 0, err
	}
	s.log.Debug().Int("n", n).Dur("dur", time.Since(start)).Msg("prediction")
	out := reported(probs)
	return &Result{Probs: out, Classes: classify(out, threshold), Threshold: threshold}, n, nil
}

// Close releases the published handle, if any.
func (s *Service) Close() error {
	h, ok := s.gate.Handle()
	if !ok {
		return nil
	}
	return h.Close()
}
