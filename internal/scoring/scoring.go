package scoring

import (
	"math"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/config"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// Scorer attaches liquidity, volatility and priority scores to candidate
// opportunities and classifies them into confidence bands. Band boundaries
// and blend weights come from configuration.
type Scorer struct {
	cfg config.ScoringConfig
}

// NewScorer creates a scorer from the configured weights and bands.
func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// thinSideWeight biases the liquidity blend toward the leg with the least
// book coverage: a deep sell book cannot rescue an empty buy book.
const thinSideWeight = 0.7

// LiquidityScore blends both legs' available volume against the quantity a
// simulated fill would need. It returns 0 when either leg lacks depth data
// or covers less than the configured minimum fraction of the requirement,
// else a value in (0, 1].
func (s *Scorer) LiquidityScore(requiredQty float64, buy, sell *model.DepthInfo) float64 {
	if requiredQty <= 0 || buy == nil || sell == nil {
		return 0
	}

	// Buying consumes the ask side of the buy venue's book; selling hits
	// the bids on the sell venue.
	buyCov := buy.AskVolume / requiredQty
	sellCov := sell.BidVolume / requiredQty

	minCov := s.cfg.MinDepthCoverage
	if minCov <= 0 {
		minCov = 0.1
	}
	if buyCov < minCov || sellCov < minCov {
		return 0
	}

	thin := math.Min(buyCov, sellCov)
	thick := math.Max(buyCov, sellCov)
	score := thinSideWeight*clamp01(thin) + (1-thinSideWeight)*clamp01(thick)
	if score <= 0 {
		return 0
	}
	return clamp01(score)
}

// VolatilityScore maps the dispersion of a pair's recent net-profit series
// into [0,1): higher dispersion scores higher and is used as a risk penalty
// downstream. An empty or single-sample series scores 0.
func (s *Scorer) VolatilityScore(netSeries []float64) float64 {
	if len(netSeries) < 2 {
		return 0
	}

	var sum float64
	for _, v := range netSeries {
		sum += v
	}
	mean := sum / float64(len(netSeries))

	var sq float64
	for _, v := range netSeries {
		d := v - mean
		sq += d * d
	}
	sigma := math.Sqrt(sq / float64(len(netSeries)-1))

	// Saturating map: sigma 0 → 0, grows toward 1 as dispersion explodes.
	return sigma / (1 + sigma)
}

// PriorityScore combines the three signals with the configured weights.
// Monotone: increasing in net percent and liquidity, decreasing in
// volatility.
func (s *Scorer) PriorityScore(netPercent, liquidity, volatility float64) float64 {
	return s.cfg.NetWeight*netPercent +
		s.cfg.LiquidityWeight*liquidity -
		s.cfg.VolatilityWeight*volatility
}

// Classify maps an opportunity's signals to a confidence band using the
// configured boundaries. Net comfortably above threshold with adequate
// liquidity and low volatility reads alta; a marginal excess or middling
// liquidity reads media; everything else baja.
func (s *Scorer) Classify(netPercent, threshold, liquidity, volatility float64) model.Confidence {
	excess := netPercent - threshold

	if excess >= s.cfg.AltaExcessPercent &&
		liquidity >= s.cfg.AltaMinLiquidity &&
		volatility <= s.cfg.AltaMaxVolatility {
		return model.ConfidenceAlta
	}
	if excess >= s.cfg.MediaExcessPercent && liquidity >= s.cfg.MediaMinLiquidity {
		return model.ConfidenceMedia
	}
	return model.ConfidenceBaja
}

// Score fills in the scoring fields of one opportunity in place. netSeries
// is the pair's recent net-profit history, supplied by the analysis stage;
// nil is fine and reads as zero volatility.
func (s *Scorer) Score(opp *model.Opportunity, threshold float64, netSeries []float64) {
	opp.LiquidityScore = s.LiquidityScore(opp.ExecutableQty, opp.BuyDepth, opp.SellDepth)
	opp.VolatilityScore = s.VolatilityScore(netSeries)
	opp.PriorityScore = s.PriorityScore(opp.NetPercent, opp.LiquidityScore, opp.VolatilityScore)
	opp.Confidence = s.Classify(opp.NetPercent, threshold, opp.LiquidityScore, opp.VolatilityScore)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
