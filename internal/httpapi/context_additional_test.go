package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"
)

type ctxKey struct{}

func TestSetBaseContext_NilResetsToBackground(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	SetBaseContext(ctx)
	// nolint:staticcheck // SA1012: nil is the documented reset
	SetBaseContext(nil)
	if serverBaseCtx != context.Background() {
		t.Fatal("nil did not reset the base context")
	}
}

func TestJoinContexts_KeepsRequestValues(t *testing.T) {
	req := context.WithValue(context.Background(), ctxKey{}, "req-42")
	j, cancel := joinContexts(context.Background(), req)
	defer cancel()
	if got := j.Value(ctxKey{}); got != "req-42" {
		t.Fatalf("value=%v", got)
	}
}

func TestJoinContexts_ShutdownCancelsWithCause(t *testing.T) {
	base, stop := context.WithCancel(context.Background())
	j, cancel := joinContexts(base, context.Background())
	defer cancel()
	stop()
	select {
	case <-j.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("joined context did not end on shutdown")
	}
	if !errors.Is(context.Cause(j), errShuttingDown) {
		t.Fatalf("cause=%v", context.Cause(j))
	}
}

func TestJoinContexts_RequestCancel(t *testing.T) {
	req, reqCancel := context.WithCancel(context.Background())
	j, cancel := joinContexts(context.Background(), req)
	defer cancel()
	reqCancel()
	select {
	case <-j.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("joined context did not end with the request")
	}
	if errors.Is(context.Cause(j), errShuttingDown) {
		t.Fatal("request cancellation reported as shutdown")
	}
}

func TestJoinContexts_CancelDetachesFromBase(t *testing.T) {
	base, stop := context.WithCancel(context.Background())
	defer stop()
	j, cancel := joinContexts(base, context.Background())
	cancel()
	stop()
	if !errors.Is(context.Cause(j), context.Canceled) || errors.Is(context.Cause(j), errShuttingDown) {
		t.Fatalf("cause=%v", context.Cause(j))
	}
}

func TestPredictHandler_SeesShutdown(t *testing.T) {
	base, stop := context.WithCancel(context.Background())
	stop()
	SetBaseContext(base)
	defer SetBaseContext(nil)
	svc := &mockService{}
	w := postPredict(NewMux(svc), `{"points":[1,2]}`)
	if w.Code != 200 {
		t.Fatalf("status=%d", w.Code)
	}
	if !errors.Is(svc.lastCtxErr, context.Canceled) {
		t.Fatalf("service saw ctx err %v", svc.lastCtxErr)
	}
}
