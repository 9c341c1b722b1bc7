package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signaldeck/internal/provider"
	"signaldeck/internal/ratelimit"
)

func TestGeminiGenerate(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Write([]byte(`{
			"candidates": [{
				"content": {"parts": [{"text": "{\"sentiment\":"}, {"text": "\"Bullish\",\"summary\":\"ok\"}"}]},
				"finishReason": "STOP",
				"groundingMetadata": {"groundingChunks": [
					{"web": {"title": "", "uri": "https://news.example/a"}},
					{"web": {"title": "No link"}}
				]}
			}]
		}`))
	}))
	defer srv.Close()

	g := NewGemini(GeminiOptions{APIKey: "secret", Model: "gemini-test", BaseURL: srv.URL, Grounding: true}, zerolog.Nop())
	text, sources, err := g.Generate(context.Background(), "prompt", MoodSchema)
	require.NoError(t, err)

	assert.JSONEq(t, `{"sentiment":"Bullish","summary":"ok"}`, text)
	require.Len(t, sources, 1)
	assert.Equal(t, "Market Source", sources[0].Title)

	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMimeType)
	assert.NotNil(t, got.GenerationConfig.ResponseSchema)
	require.Len(t, got.Tools, 1)
	assert.NotNil(t, got.Tools[0].GoogleSearch)
	assert.Equal(t, "prompt", got.Contents[0].Parts[0].Text)
}

func TestGeminiErrors(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"error":{"message":"quota"}}`))
	}))
	defer srv.Close()

	g := NewGemini(GeminiOptions{APIKey: "k", BaseURL: srv.URL, RequestsPerMinute: 600}, zerolog.Nop())

	_, _, err := g.Generate(context.Background(), "p", SignalSchema)
	var pe *provider.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.Retryable)
	assert.Greater(t, g.limiter.GetBackoff().Milliseconds(), int64(100))

	g.limiter.ResetBackoff()
	status = http.StatusBadRequest
	_, _, err = g.Generate(context.Background(), "p", SignalSchema)
	require.True(t, errors.As(err, &pe))
	assert.False(t, pe.Retryable)
}

func TestGeminiMissingKey(t *testing.T) {
	g := NewGemini(GeminiOptions{}, zerolog.Nop())
	_, _, err := g.Generate(context.Background(), "p", SignalSchema)
	assert.Error(t, err)
}

func TestGeminiNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	g := NewGemini(GeminiOptions{APIKey: "k", BaseURL: srv.URL}, zerolog.Nop())
	_, _, err := g.Generate(context.Background(), "p", SignalSchema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGeminiTimeoutExcludesRateLimitWait(t *testing.T) {
	var delay atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Duration(delay.Load())):
		case <-r.Context().Done():
			return
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{}"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGemini(GeminiOptions{APIKey: "k", BaseURL: srv.URL, Timeout: 100 * time.Millisecond}, zerolog.Nop())
	g.limiter = ratelimit.NewLimiter("gemini", 4, 1)
	require.True(t, g.limiter.Allow())

	// the limiter holds this call for ~250ms, longer than the call timeout
	start := time.Now()
	_, _, err := g.Generate(context.Background(), "p", MoodSchema)
	require.NoError(t, err)
	assert.Greater(t, time.Since(start), 150*time.Millisecond)

	delay.Store(int64(300 * time.Millisecond))
	g.limiter = ratelimit.NewLimiter("gemini", 100, 1)
	_, _, err = g.Generate(context.Background(), "p", MoodSchema)
	var pe *provider.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.Retryable)
}
