package oppo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/config"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// BuildP2P builds spot↔P2P and P2P↔P2P opportunities for one pair. Legs on a
// P2P venue must pass the execution filters: allow-listed payment method,
// minimum advertiser reputation, and a non-empty intersection of notional
// bounds with the simulated capital. A candidate whose executable notional
// intersects to zero is dropped, not scored low.
func (b *Builder) BuildP2P(pair string, quotes map[string]*model.Quote, depths map[string]*model.DepthInfo, exec config.P2PExecutionConfig) ([]model.Opportunity, []Drop) {
	var opps []model.Opportunity
	var drops []Drop

	for buyVenue, buyQ := range quotes {
		for sellVenue, sellQ := range quotes {
			if buyVenue == sellVenue {
				continue
			}
			// At least one P2P leg, otherwise BuildCrossSpot owns the pair.
			if buyQ.Kind != model.KindP2P && sellQ.Kind != model.KindP2P {
				continue
			}
			if buyQ.Ask <= 0 || sellQ.Bid <= 0 {
				continue
			}

			strategy := model.StrategySpotP2P
			if buyQ.Kind == model.KindP2P && sellQ.Kind == model.KindP2P {
				strategy = model.StrategyP2P
			}

			if reason, ok := p2pLegAllowed(buyQ, exec); !ok {
				drops = append(drops, Drop{Strategy: strategy, Pair: pair, BuyVenue: buyVenue, SellVenue: sellVenue, Reason: reason})
				continue
			}
			if reason, ok := p2pLegAllowed(sellQ, exec); !ok {
				drops = append(drops, Drop{Strategy: strategy, Pair: pair, BuyVenue: buyVenue, SellVenue: sellVenue, Reason: reason})
				continue
			}

			notional := b.executableNotional(buyQ, sellQ)
			if notional <= 0 {
				drops = append(drops, Drop{Strategy: strategy, Pair: pair, BuyVenue: buyVenue, SellVenue: sellVenue, Reason: DropZeroNotional})
				continue
			}

			fiat := p2pFiat(buyQ, sellQ, pair)
			threshold := b.resolver.Resolve(model.ThresholdContext{Strategy: strategy, Pair: pair, Fiat: fiat})

			gross := (sellQ.Bid - buyQ.Ask) / buyQ.Ask * 100
			net := gross - b.legCostPercent(buyVenue, pair) - b.legCostPercent(sellVenue, pair)
			if net <= threshold {
				if gross > 0 {
					drops = append(drops, Drop{Strategy: strategy, Pair: pair, BuyVenue: buyVenue, SellVenue: sellVenue, Reason: DropBelowThreshold})
				}
				continue
			}

			opps = append(opps, model.Opportunity{
				ID:            uuid.NewString(),
				Strategy:      strategy,
				Pair:          pair,
				BuyVenue:      buyVenue,
				SellVenue:     sellVenue,
				BuyPrice:      buyQ.Ask,
				SellPrice:     sellQ.Bid,
				GrossPercent:  gross,
				NetPercent:    net,
				ExecutableQty: notional / buyQ.Ask,
				BuyDepth:      depths[buyVenue],
				SellDepth:     depths[sellVenue],
				Notes: map[string]string{
					"fiat":                fiat,
					"payment_method":      matchedMethod(exec, buyQ, sellQ),
					"executable_notional": fmt.Sprintf("%.2f", notional),
				},
				Timestamp: time.Now(),
			})
		}
	}
	return opps, drops
}

// p2pLegAllowed applies the execution filters to a P2P leg. Non-P2P legs
// always pass.
func p2pLegAllowed(q *model.Quote, exec config.P2PExecutionConfig) (string, bool) {
	if q.Kind != model.KindP2P {
		return "", true
	}

	if len(exec.AllowedPaymentMethods) > 0 {
		methods := strings.Split(q.MetaValue(model.MetaPaymentMethods), ",")
		if !anyAllowed(methods, exec.AllowedPaymentMethods) {
			return DropPaymentMethod, false
		}
	}

	if exec.MinReputation > 0 {
		rep, err := strconv.ParseFloat(q.MetaValue(model.MetaReputation), 64)
		if err != nil || rep < exec.MinReputation {
			return DropReputation, false
		}
	}
	return "", true
}

// matchedMethod picks the payment method the admission guard should meter:
// the first allow-listed method advertised by a P2P leg.
func matchedMethod(exec config.P2PExecutionConfig, legs ...*model.Quote) string {
	for _, q := range legs {
		if q.Kind != model.KindP2P {
			continue
		}
		for _, m := range strings.Split(q.MetaValue(model.MetaPaymentMethods), ",") {
			m = strings.TrimSpace(m)
			if m == "" {
				continue
			}
			if len(exec.AllowedPaymentMethods) == 0 || anyAllowed([]string{m}, exec.AllowedPaymentMethods) {
				return m
			}
		}
	}
	return ""
}

func anyAllowed(have, allowed []string) bool {
	for _, h := range have {
		h = strings.TrimSpace(h)
		for _, a := range allowed {
			if strings.EqualFold(h, a) {
				return true
			}
		}
	}
	return false
}

// executableNotional intersects both legs' advertised notional bounds with
// the simulated capital. Zero means the legs cannot trade at any size.
func (b *Builder) executableNotional(legs ...*model.Quote) float64 {
	maxN := b.capital
	minN := 0.0
	for _, q := range legs {
		if q.Kind != model.KindP2P {
			continue
		}
		if v, err := strconv.ParseFloat(q.MetaValue(model.MetaMaxNotional), 64); err == nil && v > 0 && v < maxN {
			maxN = v
		}
		if v, err := strconv.ParseFloat(q.MetaValue(model.MetaMinNotional), 64); err == nil && v > minN {
			minN = v
		}
	}
	if maxN < minN {
		return 0
	}
	return maxN
}

// p2pFiat extracts the fiat currency of the route: an explicit P2P leg
// annotation wins, else the pair's quote currency.
func p2pFiat(buy, sell *model.Quote, pair string) string {
	if f := buy.MetaValue(model.MetaFiat); f != "" {
		return f
	}
	if f := sell.MetaValue(model.MetaFiat); f != "" {
		return f
	}
	if _, quote, ok := strings.Cut(pair, "/"); ok {
		return quote
	}
	return ""
}
