package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"pointd/internal/graphmodel/graphmodeltest"
	"pointd/internal/httpapi"
	"pointd/internal/serving"
)

// stack is an in-process server whose model has not been loaded yet.
type stack struct {
	srv    *httptest.Server
	gate   *serving.Gate
	svc    *serving.Service
	events *serving.MemoryPublisher
	loader *serving.Loader
}

// newStack writes spec into a temp artifact dir, serves it under /model/ and
// prepares a loader that fetches from that store.
func newStack(t *testing.T, spec graphmodeltest.Spec) *stack {
	t.Helper()
	dir := t.TempDir()
	if _, err := graphmodeltest.Write(dir, spec); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return newStackForDir(t, dir)
}

func newStackForDir(t *testing.T, dir string) *stack {
	t.Helper()
	httpapi.SetArtifactDir(dir)
	t.Cleanup(func() { httpapi.SetArtifactDir("") })

	gate := serving.NewGate()
	svc := serving.NewService(gate, zerolog.Nop())
	srv := httptest.NewServer(httpapi.NewMux(svc))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = svc.Close() })

	events := serving.NewMemoryPublisher()
	loader := serving.NewLoader(serving.LoaderConfig{
		Backend:  "gonum",
		StoreURL: srv.URL + "/model",
	}, gate, events, zerolog.Nop())
	return &stack{srv: srv, gate: gate, svc: svc, events: events, loader: loader}
}

func (s *stack) load(t *testing.T) error {
	t.Helper()
	_, err := s.loader.Load(context.Background())
	return err
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
