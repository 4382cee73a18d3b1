package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	applog "finanzapp/internal/log"
)

func newTestRouter(m *Middleware, buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(applog.Middleware(applog.New(applog.Config{Output: buf})), m.Handler())
	r.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c.Request.Context()))
	})
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	return r
}

func TestMiddleware_RequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		reuse    bool
	}{
		{"generated", "", false},
		{"reused", "abc-123", true},
		{"rejected", "bad id\nwith newline", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			r := newTestRouter(NewMiddleware(nil), &buf)
			req := httptest.NewRequest(http.MethodGet, "/ok", nil)
			if tt.incoming != "" {
				req.Header.Set(HeaderRequestID, tt.incoming)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			id := w.Header().Get(HeaderRequestID)
			if id == "" || w.Body.String() != id {
				t.Fatalf("header %q, body %q", id, w.Body.String())
			}
			if tt.reuse && id != tt.incoming {
				t.Errorf("incoming id not reused: %q", id)
			}
			if !tt.reuse && !strings.HasPrefix(id, "req_") {
				t.Errorf("expected generated id, got %q", id)
			}
			if !strings.Contains(buf.String(), "request_id="+id) {
				t.Errorf("access log lacks request id:\n%s", buf.String())
			}
		})
	}
}

func TestMiddleware_Metrics(t *testing.T) {
	var buf bytes.Buffer
	m := NewMiddleware(func(*gin.Context) string { return "203.0.113.9" })
	r := newTestRouter(m, &buf)

	for _, path := range []string{"/ok", "/ok", "/fail"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	got := m.GetMetrics()
	if got.TotalRequests != 3 || got.ServerErrors != 1 {
		t.Errorf("metrics = %+v", got)
	}
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "client_ip=203.0.113.9") {
		t.Errorf("unexpected access log:\n%s", buf.String())
	}
}

func TestGenerateRequestID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		if seen[id] {
			t.Fatalf("duplicate request id %s", id)
		}
		seen[id] = true
	}
}
