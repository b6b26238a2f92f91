package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/asset-checkout-kiosk/internal/audit"
	"github.com/iliyamo/asset-checkout-kiosk/internal/decoder"
	"github.com/iliyamo/asset-checkout-kiosk/internal/inventory"
	"github.com/iliyamo/asset-checkout-kiosk/internal/middleware"
	"github.com/iliyamo/asset-checkout-kiosk/internal/session"
)

type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *captureSink) Write(_ context.Context, ev audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) all() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Event(nil), s.events...)
}

func kioskSession(subjectID uint64, vip bool) *session.Session {
	return &session.Session{
		ID:          "sess-test",
		SubjectID:   subjectID,
		SubjectName: "Tester",
		VIP:         vip,
		CSRFToken:   "csrf-test",
		State:       session.StateAuthenticated,
	}
}

func authedJSONContext(e *echo.Echo, body string, s *session.Session) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/v1/scan", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	middleware.WithSession(c, s)
	return c, rec
}

func TestScan_RemoteOutageSurfacesAsBadGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := &captureSink{}
	h := NewScanHandler(
		decoder.New(decoder.Config{}),
		inventory.NewClient(srv.URL, "test-token", 2*time.Second, 0),
		audit.NewRecorder(sink),
	)

	c, rec := authedJSONContext(echo.New(), `{"barcode":"AST-0042"}`, kioskSession(42, false))
	if err := h.Scan(c); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, expected %d", rec.Code, http.StatusBadGateway)
	}
	if !strings.Contains(rec.Body.String(), "remote_unavailable") {
		t.Errorf("body = %s, expected remote_unavailable", rec.Body.String())
	}

	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(events))
	}
	if events[0].Result != audit.ResultError {
		t.Errorf("audit result = %q, want %q", events[0].Result, audit.ResultError)
	}
}

func TestScan_UnknownTagStillReturnsTheCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total":0,"rows":[]}`))
	}))
	defer srv.Close()

	sink := &captureSink{}
	h := NewScanHandler(
		decoder.New(decoder.Config{}),
		inventory.NewClient(srv.URL, "test-token", 2*time.Second, 0),
		audit.NewRecorder(sink),
	)

	c, rec := authedJSONContext(echo.New(), `{"barcode":"AST-0042"}`, kioskSession(42, false))
	if err := h.Scan(c); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, expected %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "AST-0042") {
		t.Errorf("body = %s, expected the decoded value", body)
	}
	if strings.Contains(body, `"asset"`) {
		t.Errorf("body = %s, expected no asset field for an unknown tag", body)
	}

	events := sink.all()
	if len(events) != 1 || events[0].Result != audit.ResultSuccess {
		t.Fatalf("audit events = %+v, want one SUCCESS", events)
	}
}
