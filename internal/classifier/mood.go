package classifier

import (
	"context"
	"encoding/json"
	"strings"

	"signaldeck/pkg/model"
)

// Sentiments
const (
	SentimentBullish = "Bullish"
	SentimentBearish = "Bearish"
	SentimentChoppy  = "Choppy"
)

// Breadth summarizes the last scan's instruments
type Breadth struct {
	Advancing int     `json:"advancing"`
	Declining int     `json:"declining"`
	Change    float64 `json:"change"` // index change, percent
}

// Mood is the overall market sentiment
type Mood struct {
	Sentiment string         `json:"sentiment"`
	Summary   string         `json:"summary"`
	Sources   []model.Source `json:"sources,omitempty"`
}

// FallbackMood is returned whenever the classifier cannot answer
var FallbackMood = Mood{Sentiment: SentimentChoppy, Summary: "Technical sync in progress."}

// MarketMood asks the classifier for the market sentiment. It never fails.
func (g *Gateway) MarketMood(ctx context.Context, b Breadth) Mood {
	text, sources, err := g.gen.Generate(ctx, BuildMoodPrompt(b, g.opts.Grounding), MoodSchema)
	if err != nil {
		g.log.Warn().Err(err).Msg("market mood failed")
		return FallbackMood
	}

	var m Mood
	if err := json.Unmarshal([]byte(stripFence(text)), &m); err != nil || m.Summary == "" {
		g.log.Warn().Err(err).Msg("market mood unparseable")
		return FallbackMood
	}

	switch strings.ToLower(strings.TrimSpace(m.Sentiment)) {
	case "bullish":
		m.Sentiment = SentimentBullish
	case "bearish":
		m.Sentiment = SentimentBearish
	default:
		m.Sentiment = SentimentChoppy
	}
	m.Sources = sources
	return m
}
