package quality

import (
	"math"
	"sort"
	"time"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/config"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// Rejection reasons. All triggered reasons are collected, not just the first.
const (
	ReasonStaleQuote        = "stale_quote"
	ReasonIntervenueOutlier = "intervenue_outlier"
	ReasonAnomalousSpread   = "anomalous_spread"
	ReasonInvertedSpread    = "inverted_spread"
	ReasonTimestampSkew     = "timestamp_skew"
)

// perReasonPenalty degrades the quality score for each triggered reason, so
// a quote failing several checks scores lower than one failing a single one.
const perReasonPenalty = 0.35

// Verdict is the validator's typed outcome for one quote.
type Verdict struct {
	Valid   bool     `json:"valid"`
	Reasons []string `json:"reasons,omitempty"`
	Score   float64  `json:"score"`
}

// Validator applies the configured quality checks to one pair's quotes
// across all venues. Invalid quotes are excluded from opportunity
// construction but kept by the caller in the discard log.
type Validator struct {
	cfg config.QualityConfig
}

// New creates a validator from configuration.
func New(cfg config.QualityConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Validate checks every venue's quote for one pair against the quality
// rules. now is the reference clock for staleness and skew.
func (v *Validator) Validate(quotes map[string]*model.Quote, now time.Time) map[string]Verdict {
	mids := make([]float64, 0, len(quotes))
	for _, q := range quotes {
		if m := q.Mid(); m > 0 && !q.Inverted() {
			mids = append(mids, m)
		}
	}
	center := centerOf(mids)

	out := make(map[string]Verdict, len(quotes))
	for venue, q := range quotes {
		out[venue] = v.check(venue, q, center, len(mids), now)
	}
	return out
}

func (v *Validator) check(venue string, q *model.Quote, center float64, venueCount int, now time.Time) Verdict {
	var reasons []string

	// Inverted spread is always invalid regardless of configured limits.
	if q.Inverted() {
		reasons = append(reasons, ReasonInvertedSpread)
	}

	maxAge := v.maxAge(venue)
	age := q.Age(now)
	if maxAge > 0 && age > maxAge {
		reasons = append(reasons, ReasonStaleQuote)
	}

	// A quote stamped ahead of the local clock beyond the allowed skew for
	// its source kind is as suspect as a stale one.
	if skew := v.maxSkew(q.Kind); skew > 0 && age < -skew {
		reasons = append(reasons, ReasonTimestampSkew)
	}

	if center > 0 && venueCount >= 2 && v.cfg.MaxMidDeviationPercent > 0 {
		dev := math.Abs(q.Mid()-center) / center * 100
		if dev > v.cfg.MaxMidDeviationPercent {
			reasons = append(reasons, ReasonIntervenueOutlier)
		}
	}

	if v.cfg.MaxSpreadPercent > 0 && !q.Inverted() && q.SpreadPercent() > v.cfg.MaxSpreadPercent {
		reasons = append(reasons, ReasonAnomalousSpread)
	}

	score := 1.0 - perReasonPenalty*float64(len(reasons))
	if score < 0 {
		score = 0
	}
	// Degrade smoothly with age inside the allowed window too, so fresher
	// quotes rank above merely-acceptable ones.
	if len(reasons) == 0 && maxAge > 0 && age > 0 {
		score -= 0.1 * math.Min(1, float64(age)/float64(maxAge))
	}

	return Verdict{Valid: len(reasons) == 0, Reasons: reasons, Score: score}
}

func (v *Validator) maxAge(venue string) time.Duration {
	secs, ok := v.cfg.MaxAgeSeconds[venue]
	if !ok {
		secs = v.cfg.MaxAgeSeconds[model.DefaultKey]
	}
	return time.Duration(secs * float64(time.Second))
}

func (v *Validator) maxSkew(kind model.SourceKind) time.Duration {
	secs, ok := v.cfg.MaxSkewSeconds[string(kind)]
	if !ok {
		secs = v.cfg.MaxSkewSeconds[model.DefaultKey]
	}
	return time.Duration(secs * float64(time.Second))
}

// centerOf returns the median of the mids, or the mean when fewer than three
// venues report. The median stays put when the very quote under test is the
// outlier.
func centerOf(mids []float64) float64 {
	switch len(mids) {
	case 0:
		return 0
	case 1:
		return mids[0]
	case 2:
		return (mids[0] + mids[1]) / 2
	}
	sorted := append([]float64(nil), mids...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
