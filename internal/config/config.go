package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"signaldeck/internal/broker/angel"
	"signaldeck/internal/scanner"
	"signaldeck/internal/session"
	"signaldeck/internal/symbols"
)

// Config represents the application configuration
type Config struct {
	Broker  BrokerConfig  `yaml:"broker"`
	AI      AIConfig      `yaml:"ai"`
	Scanner ScannerConfig `yaml:"scanner"`
	Store   StoreConfig   `yaml:"store"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
}

// BrokerConfig holds Angel One connection settings
type BrokerConfig struct {
	Mode           string        `yaml:"mode"` // bridge or direct
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Token          string        `yaml:"token"`
	Timeout        time.Duration `yaml:"timeout"`        // per data call
	LookupTimeout  time.Duration `yaml:"lookup_timeout"` // per remote token lookup
	ScripMasterURL string        `yaml:"scrip_master_url"`
}

// AIConfig holds classifier settings
type AIConfig struct {
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	Grounding         bool          `yaml:"grounding"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout"` // per HTTP call, after the rate limit wait
}

// ScannerConfig holds scan cycle settings
type ScannerConfig struct {
	Universe        symbols.Universe `yaml:"universe"` // target, core, test
	Source          string           `yaml:"source"`   // curated or discovery
	Exchange        string           `yaml:"exchange"`
	BatchSize       int              `yaml:"batch_size"`
	MinResolved     int              `yaml:"min_resolved"`
	IntradayRatio   float64          `yaml:"intraday_ratio"`
	TopIntraday     int              `yaml:"top_intraday"`
	TopSwing        int              `yaml:"top_swing"`
	BufferCap       int              `yaml:"buffer_cap"`
	ConfidenceFloor int              `yaml:"confidence_floor"`
	Workers         int              `yaml:"workers"`
	ClassifyRetries int              `yaml:"classify_retries"`
	RetryBackoff    time.Duration    `yaml:"retry_backoff"`
	FeedbackPerSym  int              `yaml:"feedback_per_symbol"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Backend     string `yaml:"backend"` // file, postgres, memory
	Dir         string `yaml:"dir"`
	DatabaseURL string `yaml:"database_url"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	sc := scanner.DefaultConfig()
	return &Config{
		Broker: BrokerConfig{
			Mode:           angel.ModeDirect,
			BaseURL:        angel.DefaultBaseURL,
			Timeout:        15 * time.Second,
			LookupTimeout:  10 * time.Second,
			ScripMasterURL: angel.ScripMasterURL,
		},
		AI: AIConfig{
			Model:             "gemini-2.5-pro",
			RequestsPerMinute: 30,
			Timeout:           20 * time.Second,
		},
		Scanner: ScannerConfig{
			Universe:        symbols.UniverseTarget,
			Source:          sc.Source,
			Exchange:        sc.Exchange,
			BatchSize:       sc.BatchSize,
			MinResolved:     sc.MinResolved,
			IntradayRatio:   sc.IntradayRatio,
			TopIntraday:     sc.TopIntraday,
			TopSwing:        sc.TopSwing,
			BufferCap:       sc.BufferCap,
			ConfidenceFloor: sc.ConfidenceFloor,
			Workers:         sc.Workers,
			ClassifyRetries: sc.ClassifyRetries,
			RetryBackoff:    sc.RetryBackoff,
			FeedbackPerSym:  10,
		},
		Store: StoreConfig{
			Backend: "file",
			Dir:     ".signaldeck",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, then applies .env and
// environment overrides
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// .env is optional; real environment variables win over it
	_ = godotenv.Load()
	cfg.applyEnv()

	return cfg, nil
}

func (c *Config) applyEnv() {
	sess := session.FromEnv()
	if sess.APIKey != "" {
		c.Broker.APIKey = sess.APIKey
	}
	if sess.Token != "" {
		c.Broker.Token = sess.Token
	}
	if v := os.Getenv("SIGNALDECK_BRIDGE_URL"); v != "" {
		c.Broker.Mode = angel.ModeBridge
		c.Broker.BaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("SIGNALDECK_DATABASE_URL"); v != "" {
		c.Store.DatabaseURL = v
	}
}

// Session returns the broker credentials
func (c *Config) Session() session.Session {
	return session.Session{Token: c.Broker.Token, APIKey: c.Broker.APIKey}
}

// ScanConfig converts the scanner section for the orchestrator
func (c *Config) ScanConfig() scanner.Config {
	s := c.Scanner
	return scanner.Config{
		Exchange:        s.Exchange,
		Source:          s.Source,
		BatchSize:       s.BatchSize,
		MinResolved:     s.MinResolved,
		IntradayRatio:   s.IntradayRatio,
		TopIntraday:     s.TopIntraday,
		TopSwing:        s.TopSwing,
		BufferCap:       s.BufferCap,
		ConfidenceFloor: s.ConfidenceFloor,
		Workers:         s.Workers,
		ClassifyRetries: s.ClassifyRetries,
		RetryBackoff:    s.RetryBackoff,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Broker.Mode {
	case angel.ModeBridge, angel.ModeDirect:
	default:
		return fmt.Errorf("broker.mode must be %q or %q, got %q", angel.ModeBridge, angel.ModeDirect, c.Broker.Mode)
	}
	if c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required")
	}

	s := c.Scanner
	if len(symbols.GetUniverse(s.Universe)) == 0 {
		return fmt.Errorf("unknown scanner.universe %q", s.Universe)
	}
	if s.Source != symbols.SourceCurated && s.Source != symbols.SourceDiscovery {
		return fmt.Errorf("scanner.source must be %q or %q", symbols.SourceCurated, symbols.SourceDiscovery)
	}
	if s.ConfidenceFloor < 0 || s.ConfidenceFloor > 100 {
		return fmt.Errorf("scanner.confidence_floor must be within 0-100")
	}
	if s.IntradayRatio < 0 || s.IntradayRatio > 1 {
		return fmt.Errorf("scanner.intraday_ratio must be within 0-1")
	}
	if s.BatchSize < 1 {
		return fmt.Errorf("scanner.batch_size must be at least 1")
	}
	if s.MinResolved > s.BatchSize {
		return fmt.Errorf("scanner.min_resolved (%d) exceeds batch_size (%d)", s.MinResolved, s.BatchSize)
	}
	if s.BufferCap < 1 {
		return fmt.Errorf("scanner.buffer_cap must be at least 1")
	}
	if s.TopIntraday < 0 || s.TopSwing < 0 {
		return fmt.Errorf("scanner.top_intraday and top_swing must not be negative")
	}
	if s.Workers < 1 {
		return fmt.Errorf("scanner.workers must be at least 1")
	}
	if s.ClassifyRetries < 0 {
		return fmt.Errorf("scanner.classify_retries must not be negative")
	}

	switch c.Store.Backend {
	case "file", "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store.database_url (or SIGNALDECK_DATABASE_URL) is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be file, postgres or memory")
	}
	return nil
}
