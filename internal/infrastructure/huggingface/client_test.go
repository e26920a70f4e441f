package huggingface

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-toolkit-api/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&config.HuggingFaceConfig{
		BaseURL: srv.URL,
		APIKey:  "hf_test",
		Timeout: 2 * time.Second,
		Models: config.HuggingFaceModels{
			Sentiment:      "sentiment-model",
			Summarization:  "summary-model",
			TextGeneration: "gen-model",
		},
	})
}

func TestClassifyNestedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/sentiment-model", r.URL.Path)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "great product", body["inputs"])

		_, _ = w.Write([]byte(`[[{"label":"neutral","score":0.1},{"label":"positive","score":0.85},{"label":"negative","score":0.05}]]`))
	})

	scores, err := client.Classify(context.Background(), "great product")
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, "positive", scores[0].Label)
	assert.InDelta(t, 0.85, scores[0].Score, 1e-9)
}

func TestClassifyFlatResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"label":"NEGATIVE","score":0.7},{"label":"POSITIVE","score":0.3}]`))
	})

	scores, err := client.Classify(context.Background(), "meh")
	require.NoError(t, err)
	assert.Equal(t, "NEGATIVE", scores[0].Label)
}

func TestSummarize(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/summary-model", r.URL.Path)
		_, _ = w.Write([]byte(`[{"summary_text":"  short version  "}]`))
	})

	out, err := client.Summarize(context.Background(), "long text")
	require.NoError(t, err)
	assert.Equal(t, "short version", out)
}

func TestGenerateTextUsesDefaultModel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gen-model", r.URL.Path)
		var body struct {
			Parameters map[string]any `json:"parameters"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body.Parameters["return_full_text"])
		assert.EqualValues(t, 256, body.Parameters["max_new_tokens"])
		_, _ = w.Write([]byte(`[{"generated_text":"hello"}]`))
	})

	out, err := client.GenerateText(context.Background(), "", "say hello", 256, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestModelLoadingDetection(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		eta    time.Duration
	}{
		{"503 with estimate", http.StatusServiceUnavailable, `{"error":"Model sentiment-model is currently loading","estimated_time":20.5}`, 20500 * time.Millisecond},
		{"503 plain body", http.StatusServiceUnavailable, `service unavailable`, 0},
		{"loading message on other status", http.StatusBadRequest, `{"error":"Model is Loading"}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Classify(context.Background(), "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrModelLoading)

			var loading *ModelLoadingError
			require.True(t, errors.As(err, &loading))
			assert.Equal(t, tt.eta, loading.EstimatedTime)
		})
	}
}

func TestUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid credentials"}`))
	})

	_, err := client.Summarize(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrModelLoading)

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusUnauthorized, upstream.StatusCode)
	assert.Equal(t, "Invalid credentials", upstream.Message)
}
