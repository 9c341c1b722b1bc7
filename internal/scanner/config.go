package scanner

import (
	"time"

	"signaldeck/internal/symbols"
)

// Config tunes the scan cycle
type Config struct {
	Exchange        string
	Source          string  // symbols.SourceCurated or symbols.SourceDiscovery
	BatchSize       int     // candidates per cycle
	MinResolved     int     // fewer resolved instruments fail the cycle
	IntradayRatio   float64 // share of resolved instruments analyzed intraday
	TopIntraday     int
	TopSwing        int
	BufferCap       int
	ConfidenceFloor int
	Workers         int
	ClassifyRetries int
	RetryBackoff    time.Duration
}

// DefaultConfig returns the default scan settings
func DefaultConfig() Config {
	return Config{
		Exchange:        "NSE",
		Source:          symbols.SourceCurated,
		BatchSize:       18,
		MinResolved:     5,
		IntradayRatio:   0.6,
		TopIntraday:     3,
		TopSwing:        2,
		BufferCap:       10,
		ConfidenceFloor: 65,
		Workers:         6,
		ClassifyRetries: 0,
		RetryBackoff:    2 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Exchange == "" {
		c.Exchange = d.Exchange
	}
	if c.Source == "" {
		c.Source = d.Source
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.BufferCap <= 0 {
		c.BufferCap = d.BufferCap
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
}
