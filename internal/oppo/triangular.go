package oppo

import (
	"time"

	"github.com/google/uuid"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// EvaluateRoute walks a 3-leg route on its venue, compounding capital
// leg-by-leg: SELL_BASE fills at the leg's bid, BUY_BASE at its ask, and each
// leg's taker fee is deducted before the result feeds the next leg. Gross
// percent compares the final notional to the start ignoring fees; net
// includes all three deductions. A route whose venue is missing any leg
// quote is skipped, not scored.
func (b *Builder) EvaluateRoute(route model.TriangularRoute, quotes map[string]map[string]*model.Quote) (*model.TriangularOpportunity, *Drop) {
	start := b.capital
	netAmount := start
	grossAmount := start
	legPrices := make([]float64, 0, len(route.Legs))

	for _, leg := range route.Legs {
		q := quotes[leg.Pair][route.Venue]
		if q == nil {
			return nil, &Drop{
				Strategy: model.StrategyTriangular,
				Pair:     leg.Pair,
				BuyVenue: route.Venue,
				Reason:   DropMissingLegQuote,
			}
		}

		fee := b.fees.For(route.Venue, leg.Pair).TakerFeePercent / 100

		var price float64
		switch leg.Action {
		case model.SellBase:
			// Holding the base asset, selling into the quote at the bid.
			price = q.Bid
			if price <= 0 {
				return nil, &Drop{Strategy: model.StrategyTriangular, Pair: leg.Pair, BuyVenue: route.Venue, Reason: DropMissingLegQuote}
			}
			grossAmount *= price
			netAmount *= price
		case model.BuyBase:
			// Holding the quote asset, buying the base at the ask.
			price = q.Ask
			if price <= 0 {
				return nil, &Drop{Strategy: model.StrategyTriangular, Pair: leg.Pair, BuyVenue: route.Venue, Reason: DropMissingLegQuote}
			}
			grossAmount /= price
			netAmount /= price
		}
		netAmount *= 1 - fee
		legPrices = append(legPrices, price)
	}

	return &model.TriangularOpportunity{
		ID:            uuid.NewString(),
		Route:         route.Name,
		Venue:         route.Venue,
		StartAsset:    route.StartAsset,
		StartNotional: start,
		EndNotional:   netAmount,
		GrossPercent:  (grossAmount - start) / start * 100,
		NetPercent:    (netAmount - start) / start * 100,
		Legs:          route.Legs,
		LegPrices:     legPrices,
		Timestamp:     time.Now(),
	}, nil
}

// BuildTriangular evaluates every configured route against this cycle's
// quotes and keeps those clearing the resolved threshold.
func (b *Builder) BuildTriangular(routes []model.TriangularRoute, quotes map[string]map[string]*model.Quote) ([]model.TriangularOpportunity, []Drop) {
	var opps []model.TriangularOpportunity
	var drops []Drop

	for _, route := range routes {
		opp, drop := b.EvaluateRoute(route, quotes)
		if drop != nil {
			drops = append(drops, *drop)
			continue
		}
		threshold := b.resolver.Resolve(model.ThresholdContext{Strategy: model.StrategyTriangular, Pair: route.Name})
		if opp.NetPercent <= threshold {
			if opp.GrossPercent > 0 {
				drops = append(drops, Drop{Strategy: model.StrategyTriangular, Pair: route.Name, BuyVenue: route.Venue, Reason: DropBelowThreshold})
			}
			continue
		}
		opps = append(opps, *opp)
	}
	return opps, drops
}
