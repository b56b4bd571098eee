package hud

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServeViewerWritesHTML(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	ServeViewer(rec, req)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html prefix", ct)
	}
	if body := rec.Body.String(); !strings.Contains(body, "<html>") || !strings.Contains(body, "/ws") {
		t.Errorf("expected the viewer page to reference the /ws endpoint, got: %s", body)
	}
}
