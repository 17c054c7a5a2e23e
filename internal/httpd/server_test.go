package httpd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kismetwireless/kismet-core/internal/registry"
)

func TestHandleStatusReportsRegistryState(t *testing.T) {
	r := registry.New(0)
	r.PushCriticalFailure(registry.CriticalFailure{Text: "capture helper died"})
	r.SetFatal("capture helper died")

	s := New("127.0.0.1:0", r, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Fatal || resp.FatalReason != "capture helper died" {
		t.Errorf("expected fatal status with reason, got %+v", resp)
	}
	if len(resp.CriticalFailures) != 1 {
		t.Errorf("expected 1 critical failure reported, got %d", len(resp.CriticalFailures))
	}
}

func TestHandleStatusReportsHealthyState(t *testing.T) {
	r := registry.New(0)
	s := New("127.0.0.1:0", r, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Fatal || resp.Spindown {
		t.Errorf("expected healthy status, got %+v", resp)
	}
}

func TestNewDefaultsShutdownTimeout(t *testing.T) {
	r := registry.New(0)
	s := New("127.0.0.1:0", r, 0)
	if s.shutdownTimeout != 10*time.Second {
		t.Errorf("expected default shutdown timeout 10s, got %v", s.shutdownTimeout)
	}
}

func TestServerListenAndServeAndClose(t *testing.T) {
	r := registry.New(0)
	s := New("127.0.0.1:0", r, time.Second)

	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe() }()

	time.Sleep(20 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Errorf("expected graceful Close to succeed, got %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected ListenAndServe to return nil after Close, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected ListenAndServe to return after Close")
	}
}
