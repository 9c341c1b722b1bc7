package classifier

import (
	"fmt"
	"strings"

	"signaldeck/pkg/model"
)

// Strategy names shown to the model
const (
	StrategyIntraday = "Intraday Momentum Pro"
	StrategySwing    = "Swing Master Pro"
)

// requiredFields must be present and non-null in every classifier answer
var requiredFields = []string{
	"stock", "signal", "confidence", "confidenceScore", "riskPercentage",
	"entry_range", "target", "stop_loss", "reasoning", "predictionSummary",
}

// SignalSchema is the responseSchema for a trade card
var SignalSchema = Schema{
	"type": "OBJECT",
	"properties": map[string]interface{}{
		"stock":           map[string]string{"type": "STRING"},
		"signal":          map[string]string{"type": "STRING", "description": "BUY, SELL or NO TRADE"},
		"confidence":      map[string]string{"type": "STRING"},
		"confidenceScore": map[string]string{"type": "INTEGER"},
		"riskPercentage":  map[string]string{"type": "INTEGER", "description": "Risk estimate from volatility and data gaps."},
		"entry_range":     map[string]string{"type": "STRING"},
		"target":          map[string]string{"type": "STRING"},
		"target2":         map[string]string{"type": "STRING"},
		"stop_loss":       map[string]string{"type": "STRING"},
		"reasoning":       map[string]string{"type": "STRING"},
		"predictionSummary": map[string]string{
			"type":        "STRING",
			"description": "Extended prediction logic for the detail view.",
		},
		"timeline": map[string]string{"type": "STRING", "description": "Expected holding time, e.g. 2 Hours or 3-5 Days"},
	},
	"required": requiredFields,
}

// MoodSchema is the responseSchema for the market mood
var MoodSchema = Schema{
	"type": "OBJECT",
	"properties": map[string]interface{}{
		"sentiment": map[string]string{"type": "STRING"},
		"summary":   map[string]string{"type": "STRING"},
	},
	"required": []string{"sentiment", "summary"},
}

// BuildPrompt renders the strategy prompt for one snapshot
func BuildPrompt(snap *model.Snapshot, tf model.Timeframe, feedback []string, grounding bool) string {
	var b strings.Builder

	if tf == model.TimeframeIntraday {
		vwapPos := "below"
		if snap.Price > snap.VWAP {
			vwapPos = "above"
		}
		fmt.Fprintf(&b, "Strategy: %q\n", StrategyIntraday)
		fmt.Fprintf(&b, "Analyze 15-minute OHLC for %s.\n", snap.Symbol)
		fmt.Fprintf(&b, "Technical context: price %.2f, RSI %.2f, price %s VWAP (%.2f), trend %s.\n",
			snap.Price, snap.RSI, vwapPos, snap.VWAP, snap.Trend)
		fmt.Fprintf(&b, "Last bar: O %.2f H %.2f L %.2f C %.2f.\n", snap.OHLC.Open, snap.OHLC.High, snap.OHLC.Low, snap.OHLC.Close)
		if grounding {
			fmt.Fprintf(&b, "Search for breaking news on %s in India from the last 2 hours.\n", snap.Symbol)
		}
		b.WriteString("Rules: signal BUY or SELL only with a clear momentum edge; otherwise NO TRADE.\n")
	} else {
		level := "200 EMA resistance"
		if snap.Price > snap.EMA200 {
			level = "200 EMA support"
		}
		fmt.Fprintf(&b, "Strategy: %q\n", StrategySwing)
		fmt.Fprintf(&b, "Analyze %s for a 3-7 day swing.\n", snap.Symbol)
		fmt.Fprintf(&b, "Technicals: near %s. Price %.2f, EMA50 %.2f, EMA200 %.2f, RSI %.2f, trend %s.\n",
			level, snap.Price, snap.EMA50, snap.EMA200, snap.RSI, snap.Trend)
		if grounding {
			fmt.Fprintf(&b, "Search for %s block deals and quarterly results.\n", snap.Symbol)
		}
		b.WriteString("Output a JSON trade card with a detailed risk assessment.\n")
	}

	b.WriteString("Prices are in INR. entry_range may be a single price or a range like 2450-2470.\n")

	if len(feedback) > 0 {
		fmt.Fprintf(&b, "\nUSER FEEDBACK HISTORY FOR %s:\n", snap.Symbol)
		for _, f := range feedback {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("IMPORTANT: Learn from this feedback.\n")
	}
	return b.String()
}

// BuildMoodPrompt renders the market mood prompt
func BuildMoodPrompt(b Breadth, grounding bool) string {
	var sb strings.Builder
	sb.WriteString("Analyze the current state of Nifty 50 and Bank Nifty.\n")
	if grounding {
		sb.WriteString("News scan: search for global market cues today, yesterday's FII/DII data and Gift Nifty status.\n")
	}
	fmt.Fprintf(&sb, "Data: Advancing: %d, Declining: %d, Nifty change: %.2f%%.\n", b.Advancing, b.Declining, b.Change)
	sb.WriteString(`Return sentiment as one of Bullish, Bearish or Choppy and a one sentence summary naming the key driver.`)
	return sb.String()
}
