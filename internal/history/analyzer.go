package history

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// Row is one past opportunity outcome. EffectiveNetPercent is the realized
// result when known; HasOutcome distinguishes a real fill from a
// detection-only row.
type Row struct {
	Timestamp           time.Time `json:"timestamp"`
	Strategy            string    `json:"strategy"`
	Pair                string    `json:"pair"`
	Fiat                string    `json:"fiat"`
	NetPercent          float64   `json:"net_percent"`
	EffectiveNetPercent float64   `json:"effective_net_percent"`
	HasOutcome          bool      `json:"has_outcome"`
}

// Bucket returns the (strategy, pair, fiat-or-NA) grouping key for the row.
func (r Row) Bucket() string {
	return model.ThresholdContext{Strategy: r.Strategy, Pair: r.Pair, Fiat: r.Fiat}.Bucket()
}

// RowSource supplies outcome rows for one analysis pass. The CSV log and the
// Postgres repository both implement it.
type RowSource interface {
	Rows(ctx context.Context) ([]Row, error)
}

// BucketMetrics aggregates realized performance inside one bucket.
type BucketMetrics struct {
	Samples int `json:"samples"`
	// HitRateReal is the fraction of rows with a positive realized outcome.
	HitRateReal float64 `json:"hit_rate_real"`
	// AvgSlippageDrawdownPercent is the mean of (modeled − effective)
	// clipped to ≥ 0: how much execution underperformed the model.
	AvgSlippageDrawdownPercent float64 `json:"avg_slippage_drawdown_percent"`
}

// Analysis is one immutable snapshot of the historical log. Rebuilt
// wholesale per pass; readers always see either the old or the new snapshot,
// never a mix.
type Analysis struct {
	GeneratedAt             time.Time                `json:"generated_at"`
	RowsConsidered          int                      `json:"rows_considered"`
	SuccessRate             float64                  `json:"success_rate"`
	AverageNetPercent       float64                  `json:"average_net_percent"`
	AverageEffectivePercent float64                  `json:"average_effective_percent"`
	RecommendedThreshold    float64                  `json:"recommended_threshold"`

	// Per-signal quote-currency profit estimates at the configured
	// capital figure. Zero when no capital was configured.
	AverageProfitQuote         float64 `json:"average_profit_quote"`
	AverageRealizedProfitQuote float64 `json:"average_realized_profit_quote"`

	PairVolatility          map[string]float64       `json:"pair_volatility"`
	MaxVolatility           float64                  `json:"max_volatility"`
	ContextThresholds       map[string]float64       `json:"context_thresholds"`
	BucketMetrics           map[string]BucketMetrics `json:"bucket_metrics"`

	// pairSeries keeps each pair's recent net-percent series for the
	// volatility scorer. Not exported over the wire.
	pairSeries map[string][]float64
}

// PairSeries returns a copy of the pair's recent net-percent history, newest
// last. Nil when the pair has no rows.
func (a *Analysis) PairSeries(pair string) []float64 {
	s, ok := a.pairSeries[pair]
	if !ok {
		return nil
	}
	out := make([]float64, len(s))
	copy(out, s)
	return out
}

// Analyzer turns outcome rows into Analysis snapshots and serves threshold
// lookups against the latest one. Analysis failures keep the previous
// snapshot; they are reported, never raised into the poll cycle.
type Analyzer struct {
	source     RowSource
	minSamples int
	capital    float64

	mu       sync.RWMutex
	snapshot *Analysis
}

// NewAnalyzer creates an analyzer over the given source. minSamples is the
// smallest bucket size allowed to drive a dynamic threshold; capitalQuote
// sizes the snapshot's per-signal profit estimates and may be zero.
func NewAnalyzer(source RowSource, minSamples int, capitalQuote float64) *Analyzer {
	if minSamples <= 0 {
		minSamples = 5
	}
	return &Analyzer{source: source, minSamples: minSamples, capital: capitalQuote}
}

// Snapshot returns the latest analysis, or nil before the first successful
// pass.
func (a *Analyzer) Snapshot() *Analysis {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// Refresh runs one analysis pass. On source failure the previous snapshot is
// retained unchanged and the error is returned for reporting.
func (a *Analyzer) Refresh(ctx context.Context) (*Analysis, error) {
	rows, err := a.source.Rows(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("historical analysis failed, keeping previous snapshot")
		return a.Snapshot(), fmt.Errorf("history refresh: %w", err)
	}

	snap := a.analyze(rows)
	a.mu.Lock()
	a.snapshot = snap
	a.mu.Unlock()

	log.Info().
		Int("rows", snap.RowsConsidered).
		Float64("success_rate", snap.SuccessRate).
		Float64("recommended_threshold", snap.RecommendedThreshold).
		Int("buckets", len(snap.BucketMetrics)).
		Msg("historical analysis refreshed")
	return snap, nil
}

func (a *Analyzer) analyze(rows []Row) *Analysis {
	snap := &Analysis{
		GeneratedAt:       time.Now().UTC(),
		RowsConsidered:    len(rows),
		PairVolatility:    make(map[string]float64),
		ContextThresholds: make(map[string]float64),
		BucketMetrics:     make(map[string]BucketMetrics),
		pairSeries:        make(map[string][]float64),
	}
	if len(rows) == 0 {
		return snap
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })

	var netSum, effSum float64
	outcomes, wins := 0, 0
	type agg struct {
		rows     []Row
		wins     int
		outcomes int
		drawdown float64
	}
	buckets := make(map[string]*agg)

	for _, r := range rows {
		netSum += r.NetPercent
		snap.pairSeries[r.Pair] = append(snap.pairSeries[r.Pair], r.NetPercent)

		b := buckets[r.Bucket()]
		if b == nil {
			b = &agg{}
			buckets[r.Bucket()] = b
		}
		b.rows = append(b.rows, r)

		if r.HasOutcome {
			outcomes++
			effSum += r.EffectiveNetPercent
			dd := r.NetPercent - r.EffectiveNetPercent
			if dd < 0 {
				dd = 0
			}
			b.drawdown += dd
			b.outcomes++
			if r.EffectiveNetPercent > 0 {
				wins++
				b.wins++
			}
		}
	}

	snap.AverageNetPercent = netSum / float64(len(rows))
	if outcomes > 0 {
		snap.SuccessRate = float64(wins) / float64(outcomes)
		snap.AverageEffectivePercent = effSum / float64(outcomes)
	}
	if a.capital > 0 {
		snap.AverageProfitQuote = a.capital * snap.AverageNetPercent / 100
		if outcomes > 0 {
			snap.AverageRealizedProfitQuote = a.capital * snap.AverageEffectivePercent / 100
		}
	}

	for pair, series := range snap.pairSeries {
		vol := stddev(series)
		snap.PairVolatility[pair] = vol
		if vol > snap.MaxVolatility {
			snap.MaxVolatility = vol
		}
	}

	// Recommended global threshold: the average modeled edge plus the
	// average execution drawdown, so the model must clear what reality
	// historically ate.
	var totalDD float64
	for _, b := range buckets {
		if b.outcomes > 0 {
			totalDD += b.drawdown / float64(b.outcomes)
		}
	}
	if len(buckets) > 0 {
		snap.RecommendedThreshold = math.Max(0, snap.AverageNetPercent*0.5+totalDD/float64(len(buckets)))
	}

	for key, b := range buckets {
		m := BucketMetrics{Samples: len(b.rows)}
		if b.outcomes > 0 {
			m.HitRateReal = float64(b.wins) / float64(b.outcomes)
			m.AvgSlippageDrawdownPercent = b.drawdown / float64(b.outcomes)
		}
		snap.BucketMetrics[key] = m

		// Only buckets with enough realized samples may steer the
		// threshold: modeled edge minus what execution gave back, floored
		// at the drawdown itself for buckets that historically missed.
		if b.outcomes >= a.minSamples {
			var bNet float64
			for _, r := range b.rows {
				bNet += r.NetPercent
			}
			bNet /= float64(len(b.rows))
			snap.ContextThresholds[key] = math.Max(m.AvgSlippageDrawdownPercent, bNet*(1-m.HitRateReal)+m.AvgSlippageDrawdownPercent)
		}
	}

	return snap
}

func stddev(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	mean := sum / float64(len(series))
	var sq float64
	for _, v := range series {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(series)-1))
}

// riskyRouteFloors prevents the adaptive system from learning a threshold
// under a safety floor on routes with settlement risk.
var riskyRouteFloors = map[string]float64{
	model.StrategyRoundtrip: 0.8,
	model.StrategyP2P:       0.5,
}

// ResolveThresholdForContext resolves the minimum acceptable net percent for
// a context: exact bucket threshold, else the dynamic default, else the
// static default. Risky strategies are additionally floored regardless of
// what the bucket learned.
func (a *Analyzer) ResolveThresholdForContext(tc model.ThresholdContext, dynamicDefault, staticDefault float64) float64 {
	threshold := staticDefault
	if dynamicDefault > 0 {
		threshold = dynamicDefault
	}

	if snap := a.Snapshot(); snap != nil {
		if t, ok := snap.ContextThresholds[tc.Bucket()]; ok {
			threshold = t
		}
	}

	if floor, ok := riskyRouteFloors[strings.ToLower(tc.Strategy)]; ok && threshold < floor {
		threshold = floor
	}
	return threshold
}
