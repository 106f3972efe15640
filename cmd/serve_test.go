package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/billscan/internal/config"
	"github.com/sells-group/billscan/internal/job"
	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/orchestrator"
)

const testModelOutput = `{
	"file_info": {"file_name": "scan.jpg", "page_count": 1},
	"pages": [{"page_number": 1, "line_items": [{"description": "x", "amount": 5}]}],
	"financials": {"extracted_total": 5},
	"fraud_analysis": {"risk_level": "LOW"}
}`

type stubAnalyzer struct {
	block chan struct{} // when set, Analyze waits on it
}

func (s *stubAnalyzer) Analyze(ctx context.Context, content model.Content, documentName string) (string, *model.TokenUsage, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	}
	return testModelOutput, &model.TokenUsage{TotalTokens: 50}, nil
}

func newTestServer(t *testing.T, analyzer orchestrator.Analyzer, maxWorkers int) (*apiServer, http.Handler) {
	t.Helper()

	registry := job.NewRegistry()
	e := &env{
		Registry:     registry,
		Orchestrator: orchestrator.New(registry, analyzer, config.BatchConfig{}),
	}
	api := newAPIServer(context.Background(), e, maxWorkers)
	return api, api.routes()
}

func multipartBody(t *testing.T, field string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHealthEndpoint(t *testing.T) {
	_, handler := newTestServer(t, &stubAnalyzer{}, 1)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusUnknownJob(t *testing.T) {
	_, handler := newTestServer(t, &stubAnalyzer{}, 1)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status/nope", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Job not found")
}

func TestExtractEndpoint(t *testing.T) {
	api, handler := newTestServer(t, &stubAnalyzer{}, 2)

	body, contentType := multipartBody(t, "file", map[string][]byte{
		"scan.jpg": {0xFF, 0xD8, 0xFF},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["job_id"])
	assert.Equal(t, "/api/v1/status/"+resp["job_id"], resp["status_url"])

	api.wait()

	statusRec := httptest.NewRecorder()
	handler.ServeHTTP(statusRec, httptest.NewRequest(http.MethodGet, resp["status_url"], nil))
	require.Equal(t, http.StatusOK, statusRec.Code)

	var record job.Record
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &record))
	assert.Equal(t, job.StatusCompleted, record.Status)
	assert.Equal(t, 100, record.Progress)
	require.NotNil(t, record.Result)
	assert.Equal(t, 5.0, record.Result.Financials.CalculatedTotal)
}

func TestExtractMissingFile(t *testing.T) {
	_, handler := newTestServer(t, &stubAnalyzer{}, 1)

	body, contentType := multipartBody(t, "other", map[string][]byte{"x.jpg": {1}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "file is required")
}

func TestBatchExtractEndpoint(t *testing.T) {
	api, handler := newTestServer(t, &stubAnalyzer{}, 2)

	body, contentType := multipartBody(t, "files", map[string][]byte{
		"a.jpg": {0xFF, 0xD8},
		"b.png": {0x89, 0x50},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batch-extract", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		BatchResults []struct {
			Filename  string `json:"filename"`
			JobID     string `json:"job_id"`
			StatusURL string `json:"status_url"`
		} `json:"batch_results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.BatchResults, 2)
	for _, br := range resp.BatchResults {
		assert.NotEmpty(t, br.JobID)
		assert.Equal(t, "/api/v1/status/"+br.JobID, br.StatusURL)
	}

	api.wait()

	for _, br := range resp.BatchResults {
		statusRec := httptest.NewRecorder()
		handler.ServeHTTP(statusRec, httptest.NewRequest(http.MethodGet, br.StatusURL, nil))

		var record job.Record
		require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &record))
		assert.Equal(t, job.StatusCompleted, record.Status, br.Filename)
	}
}

func TestBatchExtractNoFiles(t *testing.T) {
	_, handler := newTestServer(t, &stubAnalyzer{}, 1)

	body, contentType := multipartBody(t, "file", map[string][]byte{"x.jpg": {1}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batch-extract", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "files are required")
}

func TestExtractRejectsWhenSaturated(t *testing.T) {
	stub := &stubAnalyzer{block: make(chan struct{})}
	api, handler := newTestServer(t, stub, 1)

	submit := func() *httptest.ResponseRecorder {
		body, contentType := multipartBody(t, "file", map[string][]byte{"x.jpg": {0xFF}})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := submit()
	require.Equal(t, http.StatusAccepted, first.Code)

	// TryGo reserves the slot before the handler returns, so the second
	// submission sees a full group immediately.
	rejected := submit()
	require.Equal(t, http.StatusServiceUnavailable, rejected.Code)
	assert.Contains(t, rejected.Body.String(), "server at capacity")

	var firstResp map[string]string
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))

	close(stub.block)
	api.wait()

	statusRec := httptest.NewRecorder()
	handler.ServeHTTP(statusRec, httptest.NewRequest(http.MethodGet, firstResp["status_url"], nil))
	var record job.Record
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &record))
	assert.Equal(t, job.StatusCompleted, record.Status)
}
