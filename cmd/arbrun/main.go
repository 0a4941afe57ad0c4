package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/acquire"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/config"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/exchange"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/history"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/limits"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/metrics"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/notify"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/scanner"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/store"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/web"
)

const version = "v1.2.0"

var (
	configPath string
	routesPath string
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "arbrun",
		Short:   "Multi-venue crypto arbitrage scanner",
		Version: version,
		Long: `arbrun polls spot and P2P venues for price quotes, validates their
quality, builds fee-aware arbitrage candidates (cross-exchange, spot/P2P and
triangular), scores them and gates them through account limits.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&routesPath, "routes", "", "Path to triangular routes file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan loop (and dashboard, when enabled)",
		RunE:  runLoop,
	}
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a single scan cycle and print the report as JSON",
		RunE:  runOnce,
	}
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one historical analysis pass and print the snapshot",
		RunE:  runAnalyze,
	}

	rootCmd.AddCommand(serveCmd, scanCmd, analyzeCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles everything a command needs after assembly.
type app struct {
	cfgman   *config.Manager
	scanner  *scanner.Scanner
	metrics  *metrics.Store
	analyzer *history.Analyzer
	repo     *store.OutcomeRepo
	notifier *notify.Notifier
	feeds    []*exchange.WSFeedAdapter
}

func buildApp() (*app, error) {
	cfgman, err := config.NewManager(configPath)
	if err != nil {
		return nil, err
	}
	cfg := cfgman.Current()
	applyLogLevel(cfg.LogLevel)

	notifier, err := notify.New(cfg.Telegram)
	if err != nil {
		return nil, err
	}

	mstore := metrics.NewStore(metrics.DefaultStoreConfig())
	if err := mstore.RegisterPrometheus(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	degraded := metrics.NewDegradationNotifier(mstore, func(a metrics.Alert) {
		notifier.NotifyDegradation(a.Source, a.Reason, a.ErrorRate)
	})

	adapters, feeds, err := buildAdapters(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Redis.Enabled && cfg.Redis.QuoteCacheTTLSec > 0 {
		qc, err := exchange.NewQuoteCache(cfg.Redis.Addr, "", cfg.Redis.DB,
			time.Duration(cfg.Redis.QuoteCacheTTLSec)*time.Second)
		if err != nil {
			return nil, err
		}
		for i, a := range adapters {
			adapters[i] = qc.Wrap(a)
		}
	}
	acquirer := acquire.New(adapters, mstore, degraded, cfg.Acquisition.Workers, cfg.FetchTimeout())

	var repo *store.OutcomeRepo
	var rows history.RowSource = history.CSVSource{Path: cfg.History.LogPath}
	if cfg.Postgres.Enabled {
		repo, err = store.Open(cfg.Postgres.DSN, 5*time.Second)
		if err != nil {
			return nil, err
		}
		if err := repo.Migrate(context.Background()); err != nil {
			return nil, err
		}
		rows = repo
	}
	capital := cfg.History.CapitalQuote
	if capital <= 0 {
		capital = cfg.SimulationCapitalQuote
	}
	analyzer := history.NewAnalyzer(rows, cfg.History.MinSamples, capital)

	var ledger limits.Ledger = limits.NewMemoryLedger()
	if cfg.Redis.Enabled {
		rl, err := limits.NewRedisLedger(cfg.Redis.Addr, "", cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		ledger = rl
	}
	guard := limits.NewGuard(cfg.AccountLimits, ledger)

	var routes []model.TriangularRoute
	if routesPath != "" {
		routes, err = config.LoadRoutes(routesPath)
		if err != nil {
			return nil, err
		}
	}

	var recorder scanner.Recorder
	if repo != nil {
		recorder = repo
	}

	return &app{
		cfgman:   cfgman,
		scanner:  scanner.New(cfgman, acquirer, mstore, analyzer, guard, notifier, recorder, routes),
		metrics:  mstore,
		analyzer: analyzer,
		repo:     repo,
		notifier: notifier,
		feeds:    feeds,
	}, nil
}

// buildAdapters instantiates one adapter per enabled venue. Venue names
// select the implementation; unknown ticker venues are rejected at startup
// rather than silently skipped.
func buildAdapters(cfg *config.Config) ([]exchange.Adapter, []*exchange.WSFeedAdapter, error) {
	client := exchange.NewClient(exchange.DefaultClientConfig())

	var adapters []exchange.Adapter
	var feeds []*exchange.WSFeedAdapter
	for name, vc := range cfg.Venues {
		if !vc.Enabled {
			continue
		}
		switch {
		case name == "binance":
			adapters = append(adapters, exchange.NewBinanceAdapter(client))
		case name == "binancews":
			feed := exchange.NewBinanceWSFeed(cfg.Pairs)
			adapters = append(adapters, feed)
			feeds = append(feeds, feed)
		case name == "kraken":
			adapters = append(adapters, exchange.NewKrakenAdapter(client))
		case name == "binancep2p":
			adapters = append(adapters, exchange.NewBinanceP2PAdapter(client, vc.P2P.Fiat))
		case vc.Kind == "offline":
			adapters = append(adapters, exchange.NewStaticAdapter(name))
		default:
			return nil, nil, fmt.Errorf("venue %s: no adapter available", name)
		}
	}
	return adapters, feeds, nil
}

func runLoop(cmd *cobra.Command, _ []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start blocks on its reconnect loop until the context ends, so each
	// feed gets its own goroutine.
	for _, feed := range a.feeds {
		go feed.Start(ctx)
	}

	cfg := a.cfgman.Current()
	if cfg.Dashboard.Enabled {
		srv := web.NewServer(cfg.Dashboard.Addr, a.scanner.Reports(), a.metrics, a.analyzer)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error().Err(err).Msg("dashboard server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	err = a.scanner.Run(ctx)
	if err == context.Canceled {
		log.Info().Msg("shutting down")
		return nil
	}
	return err
}

func runOnce(cmd *cobra.Command, _ []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.analyzer.Refresh(cmd.Context()); err != nil {
		log.Warn().Err(err).Msg("historical analysis failed")
	}
	report := a.scanner.RunCycle(cmd.Context())
	return printJSON(report)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	snap, err := a.analyzer.Refresh(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(snap)
}

func (a *app) close() {
	a.notifier.Flush()
	if a.repo != nil {
		a.repo.Close()
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func applyLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
