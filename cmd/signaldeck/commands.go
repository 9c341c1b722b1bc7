package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"signaldeck/internal/classifier"
	"signaldeck/internal/market"
	"signaldeck/internal/provider"
	"signaldeck/internal/scanner"
	"signaldeck/internal/symbols"
	"signaldeck/internal/web"
	"signaldeck/pkg/model"
)

// interruptible returns a context cancelled on SIGINT/SIGTERM
func interruptible() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nInterrupted. Stopping...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := interruptible()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.AI.APIKey == "" {
		return fmt.Errorf("no classifier key. Set GEMINI_API_KEY or ai.api_key")
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetDescription("Starting scan"),
		progressbar.OptionClearOnFinish(),
	)
	var finished atomic.Bool
	progress := func(msg string) {
		if finished.Load() {
			return
		}
		bar.Describe("[cyan]" + msg + "[reset]")
		bar.Add(1)
	}

	result, err := a.scanner.RunScan(ctx, progress)
	finished.Store(true)
	bar.Finish()
	if err != nil {
		if errors.Is(err, scanner.ErrNotAuthenticated) {
			return fmt.Errorf("%w. Set ANGEL_JWT and ANGEL_API_KEY", err)
		}
		return fmt.Errorf("scanning: %w", err)
	}

	if format == "json" {
		return outputJSON(result)
	}
	return outputTable(result, a.gateway.Floor())
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := interruptible()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.AI.APIKey == "" {
		a.log.Warn().Msg("GEMINI_API_KEY not set; scans will classify nothing")
	}

	srv := web.NewServer(web.Deps{
		Scanner:  a.scanner,
		Signals:  a.signals,
		Feedback: a.feedback,
		Mood:     a.gateway,
		Broker:   a.client,
		Gatherer: a.registry,
	}, a.log)

	listen := a.cfg.Server.Addr
	if addr != "" {
		listen = addr
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(listen) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	return srv.Shutdown(shutdownCtx)
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := interruptible()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Symbol", "Exchange", "Token", "Source"}),
	)
	for _, raw := range args {
		sym := symbols.NormalizeSymbol(raw)
		src := "cache"
		if _, ok := a.resolver.Cached(sym, exchange); !ok {
			src = "remote"
		}
		token, ok := a.resolver.Resolve(ctx, sym, exchange)
		if !ok {
			token, src = "-", "unresolved"
		}
		table.Append([]string{sym, exchange, token, src})
	}
	return table.Render()
}

func runQuote(cmd *cobra.Command, args []string) error {
	ctx, cancel := interruptible()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Symbol", "Token", "LTP"}),
	)
	for _, raw := range args {
		sym := symbols.NormalizeSymbol(raw)
		token, ok := a.resolver.Resolve(ctx, sym, exchange)
		if !ok {
			table.Append([]string{sym, "-", "unresolved"})
			continue
		}
		price := a.provider.GetLastPrice(ctx, model.Instrument{Symbol: sym, Exchange: exchange, Token: token})
		ltp := "n/a"
		if price > 0 {
			ltp = fmt.Sprintf("₹%.2f", price)
		}
		table.Append([]string{sym, token, ltp})
	}
	return table.Render()
}

func runMarket(cmd *cobra.Command, args []string) error {
	st := market.Current()
	fmt.Printf("NSE %s at %s\n", st.Reason, st.CurrentIST.Format("Mon 15:04 MST"))
	if st.IsOpen {
		fmt.Printf("Closes in %s\n", market.FormatDuration(st.TimeToClose))
	} else {
		fmt.Printf("Opens in %s\n", market.FormatDuration(st.TimeToOpen))
	}
	if !withMood {
		return nil
	}

	ctx, cancel := interruptible()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	breadth := classifier.Breadth{Change: indexChange(ctx, a.provider)}
	mood := a.gateway.MarketMood(ctx, breadth)
	fmt.Printf("\nMood: %s (NIFTY %+.2f%%)\n  %s\n", mood.Sentiment, breadth.Change, mood.Summary)
	for _, src := range mood.Sources {
		fmt.Printf("  - %s %s\n", src.Title, src.URI)
	}
	return nil
}

// indexChange returns the NIFTY 50 percent change between the last two daily closes
func indexChange(ctx context.Context, p provider.Provider) float64 {
	nifty := model.Instrument{Symbol: "NIFTY", Exchange: "NSE", Token: symbols.Registry["NIFTY"]}
	from, to := provider.Window(provider.IntervalDaily, time.Now())
	candles := p.GetHistory(ctx, nifty, provider.IntervalDaily, from, to)
	if len(candles) < 2 {
		return 0
	}
	prev := candles[len(candles)-2].Close
	if prev == 0 {
		return 0
	}
	return (candles[len(candles)-1].Close - prev) / prev * 100
}

func outputTable(result *model.ScanResult, floor int) error {
	fmt.Printf("Resolved %d/%d candidates, analyzed %d, %d fresh setups at confidence >= %d in %s\n\n",
		result.Resolved, result.Candidates, result.Analyzed, len(result.Fresh), floor, result.ScanTime.Round(time.Second))

	if len(result.Signals) == 0 {
		fmt.Println("No actionable setups in the buffer.")
		return nil
	}

	fresh := make(map[string]bool, len(result.Fresh))
	for _, s := range result.Fresh {
		fresh[s.ID] = true
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Stock", "TF", "Signal", "Entry", "Stop", "Target", "R:R", "Conf", "Flags"}),
	)
	for _, s := range result.Signals {
		var flags []string
		if fresh[s.ID] {
			flags = append(flags, "new")
		}
		if s.Taken {
			flags = append(flags, "taken")
		}
		table.Append([]string{
			s.Symbol,
			string(s.Timeframe),
			string(s.Direction),
			fmt.Sprintf("%.2f", s.EntryPrice),
			fmt.Sprintf("%.2f", s.StopLoss),
			fmt.Sprintf("%.2f", s.Target),
			fmt.Sprintf("%.2f", s.RiskRewardRatio),
			fmt.Sprintf("%d (%s)", s.ConfidenceScore, s.ConfidenceLevel),
			strings.Join(flags, ","),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Println("\n--- Setup Details ---")
	for _, s := range result.Fresh {
		fmt.Printf("\n[%s] %s %s, %s\n", s.Symbol, s.Timeframe, s.Direction, s.Timeline)
		if s.Reason != "" {
			fmt.Printf("  %s\n", s.Reason)
		}
		if s.PredictionSummary != "" {
			fmt.Printf("  >> %s\n", s.PredictionSummary)
		}
	}
	return nil
}

func outputJSON(result *model.ScanResult) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
