package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/acquire"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/config"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/exchange"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/history"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/limits"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/metrics"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/oppo"
)

func testConfig() *config.Config {
	return &config.Config{
		Pairs:                  []string{"BTC/USDT"},
		ThresholdPercent:       0.5,
		SimulationCapitalQuote: 1000,
		Venues: map[string]config.VenueConfig{
			"cheap": {Enabled: true, Kind: "ticker", Fees: map[string]model.FeeSchedule{
				model.DefaultKey: {TakerFeePercent: 0.1},
			}},
			"rich": {Enabled: true, Kind: "ticker", Fees: map[string]model.FeeSchedule{
				model.DefaultKey: {TakerFeePercent: 0.1},
			}},
		},
		QuoteQuality: config.QualityConfig{
			MaxAgeSeconds:          map[string]float64{model.DefaultKey: 60},
			MaxMidDeviationPercent: 10,
			MaxSpreadPercent:       5,
			MaxSkewSeconds:         map[string]float64{model.DefaultKey: 30},
		},
		Scoring: config.ScoringConfig{
			NetWeight:          1,
			LiquidityWeight:    0.5,
			VolatilityWeight:   0.8,
			MinDepthCoverage:   0.2,
			AltaExcessPercent:  1.0,
			AltaMinLiquidity:   0.6,
			AltaMaxVolatility:  0.5,
			MediaExcessPercent: 0.1,
			MediaMinLiquidity:  0.0,
		},
		Acquisition: config.AcquisitionConfig{Workers: 4, TimeoutSeconds: 2},
	}
}

func emptyHistory() *history.Analyzer {
	return history.NewAnalyzer(history.CSVSource{Path: "/nonexistent/history.csv"}, 5, 0)
}

func newTestScanner(cfg *config.Config, adapters []exchange.Adapter, guardCfg config.AccountLimitsConfig, routes ...model.TriangularRoute) *Scanner {
	store := metrics.NewStore(metrics.DefaultStoreConfig())
	acq := acquire.New(adapters, store, metrics.NewDegradationNotifier(store, nil), 4, 2*time.Second)
	guard := limits.NewGuard(guardCfg, limits.NewMemoryLedger())
	return New(config.NewStaticManager(cfg), acq, store, emptyHistory(), guard, nil, nil, routes)
}

func staticVenue(name string, bid, ask float64) *exchange.StaticAdapter {
	a := exchange.NewStaticAdapter(name)
	a.SetQuote("BTC/USDT", model.Quote{Bid: bid, Ask: ask, Kind: model.KindTicker})
	a.SetDepth("BTC/USDT", model.DepthInfo{BestBid: bid, BestAsk: ask, BidVolume: 50, AskVolume: 50, Levels: 10})
	return a
}

func TestRunCycleFindsCrossSpotOpportunity(t *testing.T) {
	s := newTestScanner(testConfig(), []exchange.Adapter{
		staticVenue("cheap", 99.8, 100),
		staticVenue("rich", 102, 102.2),
	}, config.AccountLimitsConfig{})

	report := s.RunCycle(context.Background())
	require.Len(t, report.Opportunities, 1)

	o := report.Opportunities[0]
	assert.Equal(t, "cheap", o.BuyVenue)
	assert.Equal(t, "rich", o.SellVenue)
	// 2% gross minus the 0.1% taker fee on each leg.
	assert.InDelta(t, 1.8, o.NetPercent, 1e-9)
	assert.NotZero(t, o.LiquidityScore)
	assert.Equal(t, model.ConfidenceAlta, o.Confidence)

	// Both sources were polled and healthy.
	require.Contains(t, report.Sources, "cheap")
	assert.EqualValues(t, 1, report.Sources["cheap"].Successes)
}

func TestRunCycleRejectsBadQuality(t *testing.T) {
	stale := exchange.NewStaticAdapter("cheap")
	stale.SetQuote("BTC/USDT", model.Quote{
		Bid: 99.8, Ask: 100, Kind: model.KindTicker,
		TimestampMS: time.Now().Add(-5 * time.Minute).UnixMilli(),
	})

	s := newTestScanner(testConfig(), []exchange.Adapter{
		stale,
		staticVenue("rich", 102, 102.2),
	}, config.AccountLimitsConfig{})

	report := s.RunCycle(context.Background())
	assert.Empty(t, report.Opportunities)

	require.NotEmpty(t, report.QualityRejects)
	reject := report.QualityRejects[0]
	assert.Equal(t, "cheap", reject.Venue)
	assert.Contains(t, reject.Reasons, "stale_quote")
}

func TestRunCycleDeniesOverLimit(t *testing.T) {
	limitsCfg := config.AccountLimitsConfig{
		Profiles: map[string]config.AccountLimitProfile{
			// The opportunity needs ~1000 of fiat headroom; cap it below.
			"cheap": {MonthlyFiatLimit: 50},
		},
	}
	s := newTestScanner(testConfig(), []exchange.Adapter{
		staticVenue("cheap", 99.8, 100),
		staticVenue("rich", 102, 102.2),
	}, limitsCfg)

	report := s.RunCycle(context.Background())
	assert.Empty(t, report.Opportunities)
	require.Len(t, report.Denied, 1)
	assert.Equal(t, limits.ReasonAccountLimit, report.Denied[0].Decision.Reason)
	assert.Equal(t, limits.ScopeMonthly, report.Denied[0].Decision.Scope)
}

func TestRunCycleSurvivesDeadVenue(t *testing.T) {
	dead := exchange.NewStaticAdapter("rich") // no quotes installed
	s := newTestScanner(testConfig(), []exchange.Adapter{
		staticVenue("cheap", 99.8, 100),
		dead,
	}, config.AccountLimitsConfig{})

	report := s.RunCycle(context.Background())
	assert.Empty(t, report.Opportunities)

	var reasons []string
	for _, d := range report.Discards {
		if d.Venue == "rich" {
			reasons = append(reasons, d.Reason)
		}
	}
	assert.Contains(t, reasons, acquire.DiscardNoQuote)
}

func TestRunCycleFetchesTriangularRouteLegs(t *testing.T) {
	// Only BTC/USDT is configured for direct scanning; the route's other
	// two legs must still get their quotes fetched.
	cfg := testConfig()

	venue := exchange.NewStaticAdapter("cheap")
	venue.SetQuote("BTC/USDT", model.Quote{Bid: 99.8, Ask: 100, Kind: model.KindTicker})
	venue.SetQuote("BTC/ETH", model.Quote{Bid: 5, Ask: 5.01, Kind: model.KindTicker})
	venue.SetQuote("ETH/USDT", model.Quote{Bid: 20.4, Ask: 20.44, Kind: model.KindTicker})

	route := model.TriangularRoute{
		Name:       "btc-eth-usdt",
		Venue:      "cheap",
		StartAsset: "USDT",
		Legs: []model.TriangleLeg{
			{Pair: "BTC/USDT", Action: model.BuyBase},
			{Pair: "BTC/ETH", Action: model.SellBase},
			{Pair: "ETH/USDT", Action: model.SellBase},
		},
	}
	s := newTestScanner(cfg, []exchange.Adapter{venue}, config.AccountLimitsConfig{}, route)

	report := s.RunCycle(context.Background())

	for _, d := range report.Drops {
		assert.NotEqual(t, oppo.DropMissingLegQuote, d.Reason)
	}
	require.Len(t, report.Triangular, 1)
	tri := report.Triangular[0]
	assert.Equal(t, "btc-eth-usdt", tri.Route)
	// 1000 -> 10 BTC -> 50 ETH -> 1020 USDT gross, 0.1% fee per leg net.
	assert.InDelta(t, 2.0, tri.GrossPercent, 1e-6)
	assert.InDelta(t, 1.694, tri.NetPercent, 0.01)
}

func TestReportStoreDeepCopies(t *testing.T) {
	s := newTestScanner(testConfig(), []exchange.Adapter{
		staticVenue("cheap", 99.8, 100),
		staticVenue("rich", 102, 102.2),
	}, config.AccountLimitsConfig{})
	s.RunCycle(context.Background())

	first := s.Reports().Last()
	require.NotNil(t, first)
	require.Len(t, first.Opportunities, 1)

	// Mutating the copy must not leak into later reads.
	first.Opportunities[0].Notes = map[string]string{"tampered": "yes"}
	first.Opportunities[0].NetPercent = -1

	second := s.Reports().Last()
	assert.NotContains(t, second.Opportunities[0].Notes, "tampered")
	assert.InDelta(t, 1.8, second.Opportunities[0].NetPercent, 1e-9)
}

func TestRankingByPriority(t *testing.T) {
	cfg := testConfig()
	cfg.Pairs = []string{"BTC/USDT", "ETH/USDT"}

	mk := func(name string, btcBid, btcAsk, ethBid, ethAsk float64) *exchange.StaticAdapter {
		a := exchange.NewStaticAdapter(name)
		a.SetQuote("BTC/USDT", model.Quote{Bid: btcBid, Ask: btcAsk, Kind: model.KindTicker})
		a.SetQuote("ETH/USDT", model.Quote{Bid: ethBid, Ask: ethAsk, Kind: model.KindTicker})
		return a
	}
	s := newTestScanner(cfg, []exchange.Adapter{
		mk("cheap", 99.8, 100, 9.98, 10),
		// BTC edge ~2%, ETH edge ~5%: ETH must rank first.
		mk("rich", 102, 102.2, 10.5, 10.52),
	}, config.AccountLimitsConfig{})

	report := s.RunCycle(context.Background())
	require.Len(t, report.Opportunities, 2)
	assert.Equal(t, "ETH/USDT", report.Opportunities[0].Pair)
	assert.GreaterOrEqual(t, report.Opportunities[0].PriorityScore, report.Opportunities[1].PriorityScore)
}
