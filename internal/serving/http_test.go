package serving

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pointd/internal/httpapi"
)

func postPredict(t *testing.T, s *Service, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	httpapi.NewMux(s).ServeHTTP(w, r)
	return w
}

func TestHTTP_PanicAnswersWithErrorBody(t *testing.T) {
	b := newFake()
	b.outData = func(int) []float32 { panic("decode exploded") }
	w := postPredict(t, readyService(b), `{"points":[[0,0]]}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"error":"internal error","code":500}` {
		t.Fatalf("body=%s", got)
	}
	if strings.Contains(w.Body.String(), "exploded") {
		t.Fatalf("panic detail leaked: %s", w.Body.String())
	}
	if b.NumTensors() != 0 {
		t.Fatalf("leaked %d tensors", b.NumTensors())
	}
}

func TestHTTP_ClassAgreesWithPrintedProb(t *testing.T) {
	b := newFake()
	b.outData = func(int) []float32 { return []float32{0.3} }
	w := postPredict(t, readyService(b), `{"points":[0,0],"threshold":0.30000001}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"probs":[0.3],"classes":[0]`) {
		t.Fatalf("body=%s", w.Body.String())
	}
}
