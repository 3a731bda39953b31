package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/miradorstack/incident-metrics/internal/models"
)

type backendStub struct {
	lastReq    models.ComputeRequest
	computeErr error
	refreshErr error
	status     models.ServiceStatus
}

func (b *backendStub) Compute(_ context.Context, req models.ComputeRequest) (models.Metrics, error) {
	b.lastReq = req
	if b.computeErr != nil {
		return models.Metrics{}, b.computeErr
	}
	return models.Metrics{ComputationID: "c-1", Filter: req.Filter, Stats: models.Stats{Total: 4}}, nil
}

func (b *backendStub) Refresh(context.Context) (int, error) {
	if b.refreshErr != nil {
		return 0, b.refreshErr
	}
	b.status.SnapshotVersion++
	b.status.Ready = true
	return 4, nil
}

func (b *backendStub) Status() models.ServiceStatus { return b.status }

func serve(t *testing.T, backend MetricsBackend, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	NewHTTPHandler(backend, nil).Routes().ServeHTTP(rec, req)
	return rec
}

func TestHTTPComputeMetrics(t *testing.T) {
	backend := &backendStub{}
	rec := serve(t, backend, http.MethodPost, "/v1/metrics", `{"filter":{"year":"2024","startMonth":1,"endMonth":3}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var m models.Metrics
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.ComputationID != "c-1" || m.Stats.Total != 4 {
		t.Fatalf("unexpected body %+v", m)
	}
	if backend.lastReq.Filter.EndMonth != 3 {
		t.Fatalf("filter not forwarded: %+v", backend.lastReq)
	}
}

func TestHTTPComputeMetricsErrors(t *testing.T) {
	rec := serve(t, &backendStub{}, http.MethodPost, "/v1/metrics", `{"filter":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}

	rec = serve(t, &backendStub{computeErr: models.ErrNoSnapshot}, http.MethodPost, "/v1/metrics", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	rec = serve(t, &backendStub{computeErr: errors.New("secret detail")}, http.MethodPost, "/v1/metrics", "")
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("internal errors must be opaque, got %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, &backendStub{}, http.MethodGet, "/v1/metrics", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHTTPRefreshAndHealth(t *testing.T) {
	backend := &backendStub{}
	if rec := serve(t, backend, http.MethodGet, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before refresh, got %d", rec.Code)
	}

	rec := serve(t, backend, http.MethodPost, "/v1/refresh", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"records":4`) {
		t.Fatalf("unexpected refresh response %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(t, backend, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after refresh, got %d", rec.Code)
	}

	failing := &backendStub{refreshErr: errors.New("feed down")}
	if rec := serve(t, failing, http.MethodPost, "/v1/refresh", ""); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}
