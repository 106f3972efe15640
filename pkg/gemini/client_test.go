package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateContent(t *testing.T) {
	var gotPath, gotKey string
	var gotReq GenerateRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(GenerateResponse{
			Candidates: []Candidate{{
				Content: Content{Parts: []Part{{Text: `{"result":`}, {Text: `"ok"}`}}},
			}},
			UsageMetadata: UsageMetadata{
				PromptTokenCount:     120,
				CandidatesTokenCount: 30,
				TotalTokenCount:      150,
			},
		})
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL), WithModel("gemini-test"))

	resp, err := client.GenerateContent(context.Background(), GenerateRequest{
		Contents: []Content{{Parts: []Part{
			{Text: "analyze this"},
			{InlineData: &InlineData{MIMEType: "image/jpeg", Data: "aGVsbG8="}},
		}}},
	})

	require.NoError(t, err)
	assert.Equal(t, "/v1beta/models/gemini-test:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	require.Len(t, gotReq.Contents, 1)
	assert.Equal(t, "analyze this", gotReq.Contents[0].Parts[0].Text)
	assert.Equal(t, "image/jpeg", gotReq.Contents[0].Parts[1].InlineData.MIMEType)

	assert.Equal(t, `{"result":"ok"}`, resp.Text())
	assert.Equal(t, int64(150), resp.UsageMetadata.TotalTokenCount)
}

func TestGenerateContentAPIError(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"rate limited", http.StatusTooManyRequests},
		{"server error", http.StatusInternalServerError},
		{"bad request", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"nope"}`, tt.status)
			}))
			defer server.Close()

			client := NewClient("k", WithBaseURL(server.URL))
			_, err := client.GenerateContent(context.Background(), GenerateRequest{})

			require.Error(t, err)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}
}

func TestGenerateContentMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewClient("k", WithBaseURL(server.URL))
	_, err := client.GenerateContent(context.Background(), GenerateRequest{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}

func TestResponseTextEmpty(t *testing.T) {
	var resp GenerateResponse
	assert.Empty(t, resp.Text())
}
