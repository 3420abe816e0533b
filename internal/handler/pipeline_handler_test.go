package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sellkit/listing-pipeline/internal/model"
	"github.com/sellkit/listing-pipeline/internal/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubProcessor struct {
	lastURL  string
	lastOpts pipeline.Options
	result   *model.PipelineResult
	batch    *model.BatchResult
}

func (s *stubProcessor) Process(_ context.Context, imageURL string, opts pipeline.Options) *model.PipelineResult {
	s.lastURL = imageURL
	s.lastOpts = opts
	return s.result
}

func (s *stubProcessor) ProcessBatch(_ context.Context, imageURLs []string, opts pipeline.Options) *model.BatchResult {
	s.lastOpts = opts
	return s.batch
}

type stubGrouper struct {
	groups []model.ProductGroup
	err    error
}

func (s *stubGrouper) GroupImages(context.Context, []string) ([]model.ProductGroup, error) {
	return s.groups, s.err
}

func pipelineRouter(proc Processor, grouper ImageGrouper) *gin.Engine {
	h := NewPipelineHandler(proc, grouper, zap.NewNop())
	r := gin.New()
	r.POST("/analyze", h.Analyze)
	r.POST("/analyze-batch", h.AnalyzeBatch)
	r.POST("/group", h.Group)
	return r
}

func postJSON(t *testing.T, router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAnalyze_Success(t *testing.T) {
	proc := &stubProcessor{result: &model.PipelineResult{
		ImageURL: "https://img.test/a.jpg",
		Status:   model.StatusSuccess,
	}}
	router := pipelineRouter(proc, nil)

	w := postJSON(t, router, "/analyze", `{"image_url": "https://img.test/a.jpg"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if proc.lastURL != "https://img.test/a.jpg" {
		t.Errorf("processor got url %q", proc.lastURL)
	}

	var result model.PipelineResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if result.Status != model.StatusSuccess {
		t.Errorf("expected success status, got %q", result.Status)
	}
}

func TestAnalyze_OptionsForwarded(t *testing.T) {
	proc := &stubProcessor{result: &model.PipelineResult{Status: model.StatusSuccess}}
	router := pipelineRouter(proc, nil)

	body := `{"image_url": "https://img.test/a.jpg", "options": {"skip_pricing": true, "llm_model": "openai", "category_override": "Electronics"}}`
	w := postJSON(t, router, "/analyze", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !proc.lastOpts.SkipPricing {
		t.Error("skip_pricing not forwarded")
	}
	if proc.lastOpts.Backend != "openai" {
		t.Errorf("llm_model not forwarded, got %q", proc.lastOpts.Backend)
	}
	if proc.lastOpts.CategoryOverride != "Electronics" {
		t.Errorf("category_override not forwarded, got %q", proc.lastOpts.CategoryOverride)
	}
}

func TestAnalyze_MissingURL(t *testing.T) {
	router := pipelineRouter(&stubProcessor{}, nil)
	w := postJSON(t, router, "/analyze", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAnalyze_InvalidURL(t *testing.T) {
	router := pipelineRouter(&stubProcessor{}, nil)
	for _, u := range []string{"not-a-url", "ftp://img.test/a.jpg", "//missing-scheme"} {
		w := postJSON(t, router, "/analyze", `{"image_url": "`+u+`"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("url %q: expected 400, got %d", u, w.Code)
		}
	}
}

func TestAnalyze_PipelineError(t *testing.T) {
	proc := &stubProcessor{result: &model.PipelineResult{
		Status: model.StatusError,
		Error:  "all vision providers failed",
	}}
	router := pipelineRouter(proc, nil)

	w := postJSON(t, router, "/analyze", `{"image_url": "https://img.test/a.jpg"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
}

func TestAnalyzeBatch_Success(t *testing.T) {
	proc := &stubProcessor{batch: &model.BatchResult{
		Status:      model.StatusPartial,
		TotalImages: 2,
		Successful:  1,
		Failed:      1,
	}}
	router := pipelineRouter(proc, nil)

	w := postJSON(t, router, "/analyze-batch", `{"image_urls": ["https://img.test/1.jpg", "https://img.test/2.jpg"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"partial"`) {
		t.Errorf("expected partial status in body: %s", w.Body.String())
	}
}

func TestAnalyzeBatch_Empty(t *testing.T) {
	router := pipelineRouter(&stubProcessor{}, nil)
	w := postJSON(t, router, "/analyze-batch", `{"image_urls": []}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAnalyzeBatch_TooMany(t *testing.T) {
	urls := make([]string, pipeline.MaxBatchSize+1)
	for i := range urls {
		urls[i] = "https://img.test/a.jpg"
	}
	body, _ := json.Marshal(map[string]any{"image_urls": urls})

	router := pipelineRouter(&stubProcessor{}, nil)
	w := postJSON(t, router, "/analyze-batch", string(body))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGroup_Success(t *testing.T) {
	grouper := &stubGrouper{groups: []model.ProductGroup{
		{Label: "lamp", ImageIndices: []int{0, 1}},
		{Label: "chair", ImageIndices: []int{2}},
	}}
	router := pipelineRouter(&stubProcessor{}, grouper)

	w := postJSON(t, router, "/group", `{"image_urls": ["https://a/1.jpg", "https://a/2.jpg", "https://a/3.jpg"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"lamp"`) {
		t.Errorf("expected groups in body: %s", w.Body.String())
	}
}

func TestGroup_NoBackend(t *testing.T) {
	router := pipelineRouter(&stubProcessor{}, nil)
	w := postJSON(t, router, "/group", `{"image_urls": ["https://a/1.jpg"]}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestGroup_BackendError(t *testing.T) {
	router := pipelineRouter(&stubProcessor{}, &stubGrouper{err: errors.New("model down")})
	w := postJSON(t, router, "/group", `{"image_urls": ["https://a/1.jpg"]}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}
