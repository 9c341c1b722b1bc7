package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"signaldeck/internal/broker/angel"
	"signaldeck/internal/classifier"
	"signaldeck/internal/config"
	"signaldeck/internal/feedback"
	"signaldeck/internal/logging"
	"signaldeck/internal/metrics"
	"signaldeck/internal/provider"
	"signaldeck/internal/scanner"
	"signaldeck/internal/store"
	"signaldeck/internal/symbols"
)

// app wires the pipeline from configuration
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	client   *angel.Client
	resolver *symbols.Resolver
	provider *provider.AngelProvider
	gateway  *classifier.Gateway

	kv       store.Store
	signals  *store.SignalRepository
	feedback *feedback.Log
	scanner  *scanner.Orchestrator
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if universe != "" {
		cfg.Scanner.Universe = symbols.Universe(universe)
	}
	if source != "" {
		cfg.Scanner.Source = source
	}
	if batch > 0 {
		cfg.Scanner.BatchSize = batch
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	kv, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}

	sess := cfg.Session()
	client := angel.NewClient(sess, angel.Options{
		Mode:    cfg.Broker.Mode,
		BaseURL: cfg.Broker.BaseURL,
		Timeout: cfg.Broker.Timeout,
	}, log)
	scrips := angel.NewScripMaster(cfg.Broker.ScripMasterURL, log)
	scrips.Warm()

	// scrip master first, searchScrip as fallback until it has loaded
	resolver := symbols.NewResolver(symbols.NewChainLookup(scrips, client), cfg.Broker.LookupTimeout, log)
	loader := symbols.NewLoader(symbols.GetUniverse(cfg.Scanner.Universe), scrips, time.Now().UnixNano(), log)
	prov := provider.NewAngelProvider(client, cfg.Broker.Timeout, m, log)

	gemini := classifier.NewGemini(classifier.GeminiOptions{
		APIKey:            cfg.AI.APIKey,
		Model:             cfg.AI.Model,
		BaseURL:           cfg.AI.BaseURL,
		Grounding:         cfg.AI.Grounding,
		RequestsPerMinute: cfg.AI.RequestsPerMinute,
		Timeout:           cfg.AI.Timeout,
	}, log)
	gateway := classifier.NewGateway(gemini, classifier.Options{
		Floor:     cfg.Scanner.ConfidenceFloor,
		Grounding: cfg.AI.Grounding,
	}, m, log)

	signals := store.NewSignalRepository(kv)
	fb := feedback.New(kv, cfg.Scanner.FeedbackPerSym)

	orch := scanner.New(cfg.ScanConfig(), scanner.Deps{
		Session:    sess,
		Candidates: loader,
		Resolver:   resolver,
		Provider:   prov,
		Classifier: gateway,
		Feedback:   fb,
		Signals:    signals,
		Metrics:    m,
		Log:        log,
	})

	return &app{
		cfg:      cfg,
		log:      log,
		registry: reg,
		metrics:  m,
		client:   client,
		resolver: resolver,
		provider: prov,
		gateway:  gateway,
		kv:       kv,
		signals:  signals,
		feedback: fb,
		scanner:  orch,
	}, nil
}

func (a *app) Close() {
	if err := a.kv.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing store")
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemory(), nil
	case "postgres":
		pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return pg, nil
	default:
		fs, err := store.NewFileStore(cfg.Dir, log)
		if err != nil {
			return nil, fmt.Errorf("opening file store: %w", err)
		}
		return fs, nil
	}
}
