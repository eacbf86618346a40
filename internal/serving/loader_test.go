package serving

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"pointd/internal/artifact"
	"pointd/internal/backend"
	"pointd/internal/graphmodel/graphmodeltest"
)

func loadWith(t *testing.T, name string, b *fakeBackend) (*Gate, *MemoryPublisher, *Handle, error) {
	t.Helper()
	registerFake(name, b)
	gate := NewGate()
	pub := NewMemoryPublisher()
	l := NewLoader(LoaderConfig{Backend: name, ModelURL: "/does/not/matter/model.fake"}, gate, pub, nopLogger)
	h, err := l.Load(context.Background())
	return gate, pub, h, err
}

func TestLoader_Success(t *testing.T) {
	b := newFake()
	gate, pub, h, err := loadWith(t, "fake-ok", b)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !gate.Ready() || h.InputName != "dense_input" || h.OutputName != "Identity" || h.BackendID != "fake" {
		t.Fatalf("unexpected handle %+v ready=%v", h, gate.Ready())
	}
	want := []string{EventLoadStart, EventBackendReady, EventGraphLoaded, EventWarmupDone, EventReady}
	if got := pub.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events=%v want %v", got, want)
	}
	evs := pub.Events()
	if evs[0].LoadID == "" || evs[0].LoadID != evs[len(evs)-1].LoadID {
		t.Fatalf("load id not shared across events")
	}
	if b.executed.Load() != 1 || b.NumTensors() != 0 {
		t.Fatalf("warm-up executed=%d live=%d", b.executed.Load(), b.NumTensors())
	}
}

func TestLoader_FailureStages(t *testing.T) {
	initFail := newFake()
	initFail.initErr = errors.New("no runtime")
	loadFail := newFake()
	loadFail.loadErr = errors.New("bad artifact")
	noIO := newFake()
	noIO.noOutput = true
	warmFail := newFake()
	warmFail.execErr = errors.New("warm-up exploded")

	cases := []struct {
		name  string
		b     *fakeBackend
		stage Stage
	}{
		{"fake-init-fail", initFail, StageBackendInit},
		{"fake-load-fail", loadFail, StageGraphLoad},
		{"fake-no-io", noIO, StageGraphLoad},
		{"fake-warm-fail", warmFail, StageWarmup},
	}
	for _, tc := range cases {
		gate, pub, h, err := loadWith(t, tc.name, tc.b)
		var le *LoadError
		if !errors.As(err, &le) || le.Stage != tc.stage {
			t.Fatalf("%s: expected stage %s, got %v", tc.name, tc.stage, err)
		}
		if h != nil || gate.Ready() || gate.Describe().State != StateFailed {
			t.Fatalf("%s: gate must be failed", tc.name)
		}
		names := pub.Names()
		if names[len(names)-1] != EventLoadFailed {
			t.Fatalf("%s: last event %v", tc.name, names)
		}
		if tc.b.NumTensors() != 0 {
			t.Fatalf("%s: leaked %d tensors", tc.name, tc.b.NumTensors())
		}
	}
}

func TestLoader_UnknownBackend(t *testing.T) {
	gate := NewGate()
	_, err := NewLoader(LoaderConfig{Backend: "nope"}, gate, nil, nopLogger).Load(context.Background())
	var le *LoadError
	if !errors.As(err, &le) || le.Stage != StageBackendInit || !errors.Is(err, backend.ErrUnknownBackend) {
		t.Fatalf("expected backend_init failure, got %v", err)
	}
	if !IsLoad(err) {
		t.Fatalf("IsLoad=false for %v", err)
	}
}

func TestLoader_BackendReportedBeforeGraph(t *testing.T) {
	b := newFake()
	b.loadErr = errors.New("bad artifact")
	gate, _, _, _ := loadWith(t, "fake-backend-only", b)
	if d := gate.Describe(); d.Backend != "fake" || d.ModelLoaded {
		t.Fatalf("unexpected description %+v", d)
	}
}

func TestLoader_LocationDefaultsToStore(t *testing.T) {
	l := NewLoader(LoaderConfig{StoreURL: "http://127.0.0.1:3000/model/"}, NewGate(), nil, nopLogger)
	if got := l.Location(newFake()); got != "http://127.0.0.1:3000/model/model.fake" {
		t.Fatalf("location=%s", got)
	}
	l = NewLoader(LoaderConfig{StoreURL: "http://h/model", ModelEntry: "other.json"}, NewGate(), nil, nopLogger)
	if got := l.Location(newFake()); got != "http://h/model/other.json" {
		t.Fatalf("location=%s", got)
	}
	l = NewLoader(LoaderConfig{StoreURL: "http://h/model", ModelURL: "/srv/m.json"}, NewGate(), nil, nopLogger)
	if got := l.Location(newFake()); got != "/srv/m.json" {
		t.Fatalf("location=%s", got)
	}
}

// The gonum backend fetches its artifact from a store served over HTTP, the
// same path the server takes at startup.
func TestLoader_GonumFromStoreAndNoLeaks(t *testing.T) {
	dir := t.TempDir()
	if _, err := graphmodeltest.Write(dir, graphmodeltest.MLP()); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	srv := httptest.NewServer(http.StripPrefix("/model", artifact.Handler(dir)))
	defer srv.Close()

	gate := NewGate()
	l := NewLoader(LoaderConfig{Backend: backend.GonumName, StoreURL: srv.URL + "/model"}, gate, nil, nopLogger)
	h, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer h.Close()

	s := NewService(gate, nopLogger)
	base := h.Backend.NumTensors()
	for i := 0; i < 10000; i++ {
		resp, err := s.Predict(context.Background(), req(`[[0,0],[2,-1],[-1.5,3]]`, ""))
		if err != nil {
			t.Fatalf("predict %d: %v", i, err)
		}
		if resp.N != 3 || len(resp.Probs) != 3 || len(resp.Classes) != 3 {
			t.Fatalf("unexpected response %+v", resp)
		}
	}
	if got := h.Backend.NumTensors(); got != base {
		t.Fatalf("live tensors %d -> %d", base, got)
	}
	if !strings.HasPrefix(gate.Describe().Backend, "gonum") {
		t.Fatalf("backend=%s", gate.Describe().Backend)
	}
}
