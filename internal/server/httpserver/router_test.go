package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yndnr/emberkv/internal/server/httpserver/handler"
	"github.com/yndnr/emberkv/internal/server/kvserver"
	"github.com/yndnr/emberkv/internal/telemetry/metric"
)

type fixedInfo struct{ info kvserver.Info }

func (f fixedInfo) Info() kvserver.Info { return f.info }

func TestRouter(t *testing.T) {
	reg := metric.NewRegistry()
	reg.ClientConnected()

	router := NewRouter(&RouterConfig{
		Metrics: reg,
		Info:    fixedInfo{kvserver.Info{Version: "test", ConnectedClients: 1}},
		Logger:  testLogger(),
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			t.Fatalf("GET /metrics error = %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if !strings.Contains(string(body), "emberkv_connected_clients 1") {
			t.Errorf("metrics body missing emberkv_connected_clients")
		}
	})

	t.Run("healthz", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatalf("GET /healthz error = %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Error("X-Request-ID header missing")
		}
	})

	t.Run("info", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/info")
		if err != nil {
			t.Fatalf("GET /info error = %v", err)
		}
		defer resp.Body.Close()

		var info kvserver.Info
		envelope := handler.Response{Data: &info}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if info.Version != "test" || info.ConnectedClients != 1 {
			t.Errorf("info = %+v", info)
		}
		if envelope.RequestID == "" {
			t.Error("envelope request_id missing")
		}
	})

	t.Run("unknown path", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/sessions")
		if err != nil {
			t.Fatalf("GET error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})
}

func TestRouter_AllowList(t *testing.T) {
	router := NewRouter(&RouterConfig{
		AllowList: []string{"10.0.0.0/8"},
		Logger:    testLogger(),
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestRouter_NilMetrics(t *testing.T) {
	router := NewRouter(&RouterConfig{Logger: testLogger()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
