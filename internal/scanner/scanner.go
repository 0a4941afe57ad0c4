// Package scanner orchestrates one poll cycle end to end: acquire quotes,
// validate quality, build candidate opportunities, score and classify them,
// gate them through admission control, and rank what survives.
package scanner

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/acquire"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/config"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/history"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/limits"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/metrics"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/notify"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/oppo"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/quality"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/scoring"
)

// QualityReject is one quote the validator excluded, kept for observability.
type QualityReject struct {
	Pair    string   `json:"pair"`
	Venue   string   `json:"venue"`
	Reasons []string `json:"reasons"`
	Score   float64  `json:"score"`
}

// AdmissionDenial is one opportunity the account-limit guard refused.
type AdmissionDenial struct {
	Opportunity model.Opportunity `json:"opportunity"`
	Decision    limits.Decision   `json:"decision"`
}

// CycleReport is everything one poll cycle produced. Snapshots handed out by
// the scanner are deep copies; callers can hold them across cycles.
type CycleReport struct {
	StartedAt      time.Time                          `json:"started_at"`
	Duration       time.Duration                      `json:"duration"`
	Opportunities  []model.Opportunity                `json:"opportunities"`
	Triangular     []model.TriangularOpportunity      `json:"triangular"`
	Denied         []AdmissionDenial                  `json:"denied,omitempty"`
	Drops          []oppo.Drop                        `json:"drops,omitempty"`
	QualityRejects []QualityReject                    `json:"quality_rejects,omitempty"`
	Discards       []acquire.Discard                  `json:"discards,omitempty"`
	Sources        map[string]metrics.SourceSnapshot  `json:"sources"`
}

// Recorder persists detected opportunities for later outcome attribution.
// The Postgres repository implements it; nil disables persistence.
type Recorder interface {
	RecordOpportunity(ctx context.Context, opp model.Opportunity) error
}

// Scanner wires the pipeline stages together and keeps the latest report.
type Scanner struct {
	cfgman   *config.Manager
	acquirer *acquire.Acquirer
	store    *metrics.Store
	analyzer *history.Analyzer
	guard    *limits.Guard
	notifier *notify.Notifier
	recorder Recorder
	routes   []model.TriangularRoute

	reports *ReportStore
}

// New assembles a scanner. notifier and recorder may be nil.
func New(cfgman *config.Manager, acquirer *acquire.Acquirer, store *metrics.Store, analyzer *history.Analyzer, guard *limits.Guard, notifier *notify.Notifier, recorder Recorder, routes []model.TriangularRoute) *Scanner {
	return &Scanner{
		cfgman:   cfgman,
		acquirer: acquirer,
		store:    store,
		analyzer: analyzer,
		guard:    guard,
		notifier: notifier,
		recorder: recorder,
		routes:   routes,
		reports:  NewReportStore(),
	}
}

// Reports exposes the snapshot store for the HTTP layer.
func (s *Scanner) Reports() *ReportStore { return s.reports }

// fetchPairs unions the configured pairs with every triangular route leg
// pair. Route legs often cross pairs nobody trades directly, and a leg
// without a fetched quote can never evaluate.
func (s *Scanner) fetchPairs(pairs []string) []string {
	out := make([]string, 0, len(pairs))
	seen := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, route := range s.routes {
		for _, leg := range route.Legs {
			if _, ok := seen[leg.Pair]; ok {
				continue
			}
			seen[leg.Pair] = struct{}{}
			out = append(out, leg.Pair)
		}
	}
	return out
}

// RunCycle executes one full poll cycle and stores its report.
func (s *Scanner) RunCycle(ctx context.Context) *CycleReport {
	started := time.Now()
	cfg := s.cfgman.Current()

	report := &CycleReport{StartedAt: started.UTC()}

	raw := s.acquirer.Fetch(ctx, s.fetchPairs(cfg.Pairs))
	report.Discards = raw.Discards

	validator := quality.New(cfg.QuoteQuality)
	valid := make(map[string]map[string]*model.Quote, len(raw.Quotes))
	now := time.Now()
	for pair, byVenue := range raw.Quotes {
		verdicts := validator.Validate(byVenue, now)
		kept := make(map[string]*model.Quote, len(byVenue))
		for venue, verdict := range verdicts {
			if verdict.Valid {
				kept[venue] = byVenue[venue]
				continue
			}
			report.QualityRejects = append(report.QualityRejects, QualityReject{
				Pair:    pair,
				Venue:   venue,
				Reasons: verdict.Reasons,
				Score:   verdict.Score,
			})
		}
		if len(kept) > 0 {
			valid[pair] = kept
		}
	}

	resolver := s.thresholdResolver(cfg)
	builder := oppo.NewBuilder(cfg.VenueFees(), resolver, cfg.SimulationCapitalQuote, true)

	var opps []model.Opportunity
	for pair, byVenue := range valid {
		depths := raw.Depths[pair]

		built, drops := builder.BuildCrossSpot(pair, onlyKind(byVenue, false), depths)
		opps = append(opps, built...)
		report.Drops = append(report.Drops, drops...)

		built, drops = builder.BuildP2P(pair, byVenue, depths, cfg.P2PExecution)
		opps = append(opps, built...)
		report.Drops = append(report.Drops, drops...)

		built, drops = builder.BuildRoundtrip(pair, byVenue, depths, cfg.P2PExecution, cfg)
		opps = append(opps, built...)
		report.Drops = append(report.Drops, drops...)
	}

	tri, triDrops := builder.BuildTriangular(s.routes, valid)
	report.Triangular = tri
	report.Drops = append(report.Drops, triDrops...)

	scorer := scoring.NewScorer(cfg.Scoring)
	snap := s.analyzer.Snapshot()
	for i := range opps {
		var series []float64
		if snap != nil {
			series = snap.PairSeries(opps[i].Pair)
		}
		threshold := resolver.Resolve(contextOf(opps[i]))
		scorer.Score(&opps[i], threshold, series)
	}

	report.Opportunities, report.Denied = s.admit(ctx, opps)

	sort.Slice(report.Opportunities, func(i, j int) bool {
		return report.Opportunities[i].PriorityScore > report.Opportunities[j].PriorityScore
	})

	report.Sources = s.store.Snapshot()
	report.Duration = time.Since(started)
	s.reports.Put(report)

	if s.recorder != nil {
		for _, o := range report.Opportunities {
			if err := s.recorder.RecordOpportunity(ctx, o); err != nil {
				log.Warn().Err(err).Str("id", o.ID).Msg("record opportunity failed")
			}
		}
	}
	s.notifier.NotifyOpportunities(report.Opportunities)

	log.Info().
		Int("opportunities", len(report.Opportunities)).
		Int("triangular", len(report.Triangular)).
		Int("denied", len(report.Denied)).
		Int("drops", len(report.Drops)).
		Int("quality_rejects", len(report.QualityRejects)).
		Int("discards", len(report.Discards)).
		Dur("took", report.Duration).
		Msg("scan cycle done")
	return report
}

// admit gates scored opportunities through the account-limit guard. The
// check is non-consuming: scanning only asks whether the signal would be
// actionable right now.
func (s *Scanner) admit(ctx context.Context, opps []model.Opportunity) ([]model.Opportunity, []AdmissionDenial) {
	var admitted []model.Opportunity
	var denied []AdmissionDenial
	now := time.Now()

	for _, o := range opps {
		fiatAmount := fiatNotional(o)
		decision := limits.Decision{Allowed: true}
		for _, venue := range []string{o.BuyVenue, o.SellVenue} {
			d, err := s.guard.CheckAccountLimit(ctx, venue, fiatAmount, paymentMethodOf(o), now, false)
			if err != nil {
				log.Warn().Err(err).Str("venue", venue).Msg("admission check failed, admitting")
				continue
			}
			if !d.Allowed {
				decision = d
				break
			}
		}
		if decision.Allowed {
			admitted = append(admitted, o)
		} else {
			denied = append(denied, AdmissionDenial{Opportunity: o, Decision: decision})
		}
	}
	return admitted, denied
}

// thresholdResolver binds the analyzer's context resolution to the current
// configuration's defaults.
func (s *Scanner) thresholdResolver(cfg *config.Config) oppo.ThresholdResolver {
	dynamic := 0.0
	if snap := s.analyzer.Snapshot(); snap != nil {
		dynamic = snap.RecommendedThreshold
	}
	return oppo.ResolverFunc(func(tc model.ThresholdContext) float64 {
		return s.analyzer.ResolveThresholdForContext(tc, dynamic, cfg.ThresholdPercent)
	})
}

func contextOf(o model.Opportunity) model.ThresholdContext {
	return model.ThresholdContext{Strategy: o.Strategy, Pair: o.Pair, Fiat: o.Notes["fiat"]}
}

// fiatNotional is the amount the admission guard should test: the executable
// notional when known, else nothing worth gating.
func fiatNotional(o model.Opportunity) float64 {
	if o.ExecutableQty > 0 && o.BuyPrice > 0 {
		return o.ExecutableQty * o.BuyPrice
	}
	return 0
}

func paymentMethodOf(o model.Opportunity) string {
	return o.Notes["payment_method"]
}

// onlyKind filters a venue map to spot-only or P2P-only quotes.
func onlyKind(byVenue map[string]*model.Quote, p2p bool) map[string]*model.Quote {
	out := make(map[string]*model.Quote, len(byVenue))
	for venue, q := range byVenue {
		if (q.Kind == model.KindP2P) == p2p {
			out[venue] = q
		}
	}
	return out
}
