package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	format   string
	verbose  bool
	universe string
	source   string
	batch    int
	addr     string
	exchange string
	withMood bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "signaldeck",
		Short: "AI-assisted NSE trade signal scanner",
		Long: `signaldeck scans NSE equities through Angel One SmartAPI, computes
RSI, EMA50/200, VWAP and trend on each instrument, and asks Gemini for a
confidence-scored BUY/SELL setup. The best setups land in a rolling buffer.

Examples:
  signaldeck scan
  signaldeck scan --source discovery --batch 24 --format json
  signaldeck serve --addr :8080
  signaldeck resolve RELIANCE TCS-EQ
  signaldeck market --mood`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan cycle and print the signal buffer",
		Args:  cobra.NoArgs,
		RunE:  runScan,
	}
	scanCmd.Flags().StringVar(&format, "format", "table", "output format: table, json")
	scanCmd.Flags().StringVar(&universe, "universe", "", "curated universe: target, core, test")
	scanCmd.Flags().StringVar(&source, "source", "", "candidate source: curated, discovery")
	scanCmd.Flags().IntVar(&batch, "batch", 0, "candidates per cycle")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")

	resolveCmd := &cobra.Command{
		Use:   "resolve SYMBOL...",
		Short: "Resolve tickers to broker tokens",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runResolve,
	}
	resolveCmd.Flags().StringVar(&exchange, "exchange", "NSE", "exchange segment")

	quoteCmd := &cobra.Command{
		Use:   "quote SYMBOL...",
		Short: "Print last traded prices",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuote,
	}
	quoteCmd.Flags().StringVar(&exchange, "exchange", "NSE", "exchange segment")

	marketCmd := &cobra.Command{
		Use:   "market",
		Short: "Print NSE market status",
		Args:  cobra.NoArgs,
		RunE:  runMarket,
	}
	marketCmd.Flags().BoolVar(&withMood, "mood", false, "ask the classifier for the market mood")

	rootCmd.AddCommand(scanCmd, serveCmd, resolveCmd, quoteCmd, marketCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
