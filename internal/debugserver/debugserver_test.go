package debugserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/use-agent/browser-stream/internal/cdp/fake"
	"github.com/use-agent/browser-stream/internal/model"
	"github.com/use-agent/browser-stream/internal/registry"
)

func TestHealthz_ReportsConnectedAndUptime(t *testing.T) {
	ch := fake.New()
	reg := registry.New()
	srv := New("127.0.0.1:0", ch, reg, 100, 100)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Errorf("expected ok:true in body, got %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"browserConnected":true`) {
		t.Errorf("expected browserConnected:true for an open fake channel, got %s", rec.Body.String())
	}
}

func TestDebugRegistry_ReportsLiveRefsAndCounter(t *testing.T) {
	ch := fake.New()
	reg := registry.New()
	reg.Assign(model.NodeIdentity{BackendNodeID: 1})
	reg.Assign(model.NodeIdentity{BackendNodeID: 2})

	srv := New("127.0.0.1:0", ch, reg, 100, 100)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/registry", nil)
	srv.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"liveRefs":2`) {
		t.Errorf("expected liveRefs:2, got %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"counter":2`) {
		t.Errorf("expected counter:2, got %s", rec.Body.String())
	}
}

func TestRateLimit_RejectsBurstOverflow(t *testing.T) {
	ch := fake.New()
	reg := registry.New()
	srv := New("127.0.0.1:0", ch, reg, 0.001, 1)

	first := httptest.NewRecorder()
	srv.engine.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	srv.engine.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("expected second request to be rate limited, got %d", second.Code)
	}
}
