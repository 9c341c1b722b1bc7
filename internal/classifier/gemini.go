package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"signaldeck/internal/provider"
	"signaldeck/internal/ratelimit"
	"signaldeck/pkg/model"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.5-pro"
)

// Schema is a Gemini responseSchema object
type Schema map[string]interface{}

// GeminiOptions configures the Gemini client
type GeminiOptions struct {
	APIKey            string
	Model             string
	BaseURL           string
	Grounding         bool // attach the googleSearch tool
	RequestsPerMinute int
	Timeout           time.Duration // per HTTP call, not counting the rate limit wait
}

// Gemini calls generateContent with a structured JSON response
type Gemini struct {
	opts    GeminiOptions
	client  *http.Client
	limiter *ratelimit.Limiter
	log     zerolog.Logger
}

// NewGemini creates a Gemini client
func NewGemini(opts GeminiOptions, log zerolog.Logger) *Gemini {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultGeminiBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultGeminiModel
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 30
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	return &Gemini{
		opts:    opts,
		client:  &http.Client{},
		limiter: ratelimit.PerMinute("gemini", opts.RequestsPerMinute),
		log:     log.With().Str("component", "gemini").Logger(),
	}
}

// Name returns the provider name
func (g *Gemini) Name() string {
	return "gemini"
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	Tools            []geminiTool            `json:"tools,omitempty"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   Schema  `json:"responseSchema,omitempty"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

type geminiCandidate struct {
	Content           geminiContent `json:"content"`
	FinishReason      string        `json:"finishReason"`
	GroundingMetadata *struct {
		GroundingChunks []struct {
			Web *struct {
				Title string `json:"title"`
				URI   string `json:"uri"`
			} `json:"web,omitempty"`
		} `json:"groundingChunks"`
	} `json:"groundingMetadata,omitempty"`
}

// Generate sends prompt and returns the JSON text of the first candidate
// together with any web sources it was grounded on.
func (g *Gemini) Generate(ctx context.Context, prompt string, schema Schema) (string, []model.Source, error) {
	if g.opts.APIKey == "" {
		return "", nil, &provider.ProviderError{Provider: g.Name(), Err: errors.New("GEMINI_API_KEY not set")}
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", nil, fmt.Errorf("rate limit: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.2,
			ResponseMimeType: "application/json",
			ResponseSchema:   schema,
		},
	}
	if g.opts.Grounding {
		req.Tools = []geminiTool{{GoogleSearch: &struct{}{}}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(g.opts.BaseURL, "/"), g.opts.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.opts.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", nil, &provider.ProviderError{Provider: g.Name(), Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusTooManyRequests {
			g.limiter.SignalRateLimited()
		}
		return "", nil, &provider.ProviderError{
			Provider:  g.Name(),
			Err:       fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}
	g.limiter.ResetBackoff()

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(gr.Candidates) == 0 {
		if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
			return "", nil, fmt.Errorf("prompt blocked: %s", gr.PromptFeedback.BlockReason)
		}
		return "", nil, errors.New("no candidates in response")
	}

	cand := gr.Candidates[0]
	var text strings.Builder
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}

	var sources []model.Source
	if cand.GroundingMetadata != nil {
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" {
				continue
			}
			title := chunk.Web.Title
			if title == "" {
				title = "Market Source"
			}
			sources = append(sources, model.Source{Title: title, URI: chunk.Web.URI})
		}
	}

	g.log.Debug().Str("finish", cand.FinishReason).Int("sources", len(sources)).Msg("generateContent ok")
	return text.String(), sources, nil
}
