package oppo

import (
	"time"

	"github.com/google/uuid"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// ThresholdResolver yields the minimum acceptable net percent for a context.
type ThresholdResolver interface {
	Resolve(tc model.ThresholdContext) float64
}

// ResolverFunc adapts a plain function to ThresholdResolver.
type ResolverFunc func(tc model.ThresholdContext) float64

func (f ResolverFunc) Resolve(tc model.ThresholdContext) float64 { return f(tc) }

// Drop records a candidate rejected before scoring, with the reason.
type Drop struct {
	Strategy  string `json:"strategy"`
	Pair      string `json:"pair"`
	BuyVenue  string `json:"buy_venue"`
	SellVenue string `json:"sell_venue"`
	Reason    string `json:"reason"`
}

// Drop reasons.
const (
	DropBelowThreshold  = "below_threshold"
	DropPaymentMethod   = "payment_method_not_allowed"
	DropReputation      = "reputation_below_minimum"
	DropZeroNotional    = "zero_executable_notional"
	DropNoTransferPath  = "no_transfer_path"
	DropMissingLegQuote = "missing_leg_quote"
)

// Builder constructs candidate opportunities from validated quotes.
type Builder struct {
	fees     model.VenueFees
	resolver ThresholdResolver
	// capital is the simulated position size in quote currency.
	capital float64
	// modelSlippage adds each leg's configured slippage to the fee load.
	modelSlippage bool
}

// NewBuilder creates a builder. resolver must not be nil.
func NewBuilder(fees model.VenueFees, resolver ThresholdResolver, capital float64, modelSlippage bool) *Builder {
	return &Builder{
		fees:          fees,
		resolver:      resolver,
		capital:       capital,
		modelSlippage: modelSlippage,
	}
}

// legCostPercent is the total modeled cost of taking one leg on a venue.
func (b *Builder) legCostPercent(venue, pair string) float64 {
	fs := b.fees.For(venue, pair)
	cost := fs.TakerFeePercent
	if b.modelSlippage {
		cost += fs.SlippagePercent()
	}
	return cost
}

// BuildCrossSpot builds cross-exchange spot opportunities for one pair from
// its validated ticker quotes. Every ordered pair of distinct venues is
// considered; only candidates with net percent above the resolved threshold
// survive.
func (b *Builder) BuildCrossSpot(pair string, quotes map[string]*model.Quote, depths map[string]*model.DepthInfo) ([]model.Opportunity, []Drop) {
	var opps []model.Opportunity
	var drops []Drop

	threshold := b.resolver.Resolve(model.ThresholdContext{Strategy: model.StrategyCrossSpot, Pair: pair})

	for buyVenue, buyQ := range quotes {
		for sellVenue, sellQ := range quotes {
			if buyVenue == sellVenue {
				continue
			}
			if buyQ.Ask <= 0 || sellQ.Bid <= 0 {
				continue
			}

			gross := (sellQ.Bid - buyQ.Ask) / buyQ.Ask * 100
			net := gross - b.legCostPercent(buyVenue, pair) - b.legCostPercent(sellVenue, pair)
			if net <= threshold {
				if gross > 0 {
					drops = append(drops, Drop{
						Strategy: model.StrategyCrossSpot, Pair: pair,
						BuyVenue: buyVenue, SellVenue: sellVenue,
						Reason: DropBelowThreshold,
					})
				}
				continue
			}

			opps = append(opps, model.Opportunity{
				ID:            uuid.NewString(),
				Strategy:      model.StrategyCrossSpot,
				Pair:          pair,
				BuyVenue:      buyVenue,
				SellVenue:     sellVenue,
				BuyPrice:      buyQ.Ask,
				SellPrice:     sellQ.Bid,
				GrossPercent:  gross,
				NetPercent:    net,
				ExecutableQty: b.capital / buyQ.Ask,
				BuyDepth:      depths[buyVenue],
				SellDepth:     depths[sellVenue],
				Timestamp:     time.Now(),
			})
		}
	}
	return opps, drops
}
