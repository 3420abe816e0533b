package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func corsRouter(origins ...string) *gin.Engine {
	router := gin.New()
	router.Use(CORS(origins))
	router.POST("/pipeline/analyze", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

func TestCORS_AllowedOrigin(t *testing.T) {
	router := corsRouter("http://localhost:3000", "https://app.sellkit.example")

	req := httptest.NewRequest("POST", "/pipeline/analyze", nil)
	req.Header.Set("Origin", "https://app.sellkit.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.sellkit.example" {
		t.Errorf("expected CORS origin header, got %q", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	router := corsRouter("http://localhost:3000")

	req := httptest.NewRequest("POST", "/pipeline/analyze", nil)
	req.Header.Set("Origin", "http://evil.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header for disallowed origin, got %q", got)
	}
	if w.Code != http.StatusOK {
		t.Errorf("disallowed origin must still reach the handler, got %d", w.Code)
	}
}

func TestCORS_PreflightAdvertisesPOST(t *testing.T) {
	router := corsRouter("http://localhost:3000")

	req := httptest.NewRequest("OPTIONS", "/pipeline/analyze", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", w.Code)
	}
	// The analyze endpoints are POST; preflight must permit it.
	if methods := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(methods, "POST") {
		t.Errorf("expected POST in Access-Control-Allow-Methods, got %q", methods)
	}
	if headers := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(headers, "X-API-Key") {
		t.Errorf("expected X-API-Key in Access-Control-Allow-Headers, got %q", headers)
	}
}
