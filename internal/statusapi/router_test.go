package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/your-org/falldetect/internal/falldetect/fsm"
)

type fakeSource struct {
	status Status
}

func (f fakeSource) Status() Status {
	return f.status
}

func TestHealthzReturnsOK(t *testing.T) {
	r := NewRouter(fakeSource{}, time.Now(), false)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestStatusReportsSourceSnapshot(t *testing.T) {
	startedAt := time.Now().Add(-5 * time.Second)
	src := fakeSource{status: Status{InferFPS: 11.5, State: fsm.StateAwaitStill, LastTriggered: "evt42"}}
	r := NewRouter(src, startedAt, false)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["state"] != string(fsm.StateAwaitStill) {
		t.Errorf("state = %v, want %v", body["state"], fsm.StateAwaitStill)
	}
	if fps, ok := body["infer_fps"].(float64); !ok || fps != 11.5 {
		t.Errorf("infer_fps = %v, want 11.5", body["infer_fps"])
	}
	if body["last_event_id"] != "evt42" {
		t.Errorf("last_event_id = %v, want evt42", body["last_event_id"])
	}
	if uptime, ok := body["uptime_sec"].(float64); !ok || uptime < 5 {
		t.Errorf("uptime_sec = %v, want >= 5", body["uptime_sec"])
	}
}

func TestFuncAdapterDelegatesToUnderlyingClosure(t *testing.T) {
	want := Status{InferFPS: 7, State: fsm.StateIdle}
	var f Func = func() Status { return want }

	var src StatusSource = f
	if got := src.Status(); got != want {
		t.Fatalf("Func adapter returned %+v, want %+v", got, want)
	}
}

func TestMetricsEndpointGatedByFlag(t *testing.T) {
	withMetrics := NewRouter(fakeSource{}, time.Now(), true)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	withMetrics.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected /metrics to be served when enabled, got status %d", rec.Code)
	}

	withoutMetrics := NewRouter(fakeSource{}, time.Now(), false)
	req2 := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec2 := httptest.NewRecorder()
	withoutMetrics.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusNotFound {
		t.Errorf("expected /metrics to 404 when disabled, got status %d", rec2.Code)
	}
}
