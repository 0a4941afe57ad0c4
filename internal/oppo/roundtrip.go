package oppo

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/config"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// BuildRoundtrip builds cross-fiat roundtrip candidates (the ARS/USDT style
// route): for every venue pair it tries both directions, spot→P2P and
// P2P→spot. Cross-venue routes additionally need a known transfer path
// between the venues; same-venue routes pass that check trivially.
func (b *Builder) BuildRoundtrip(pair string, quotes map[string]*model.Quote, depths map[string]*model.DepthInfo, exec config.P2PExecutionConfig, transfers TransferChecker) ([]model.Opportunity, []Drop) {
	var opps []model.Opportunity
	var drops []Drop

	for buyVenue, buyQ := range quotes {
		for sellVenue, sellQ := range quotes {
			// A roundtrip crosses the spot/P2P boundary in one of the two
			// directions; pure same-kind routes belong to the other builders.
			if (buyQ.Kind == model.KindP2P) == (sellQ.Kind == model.KindP2P) {
				continue
			}
			if buyQ.Ask <= 0 || sellQ.Bid <= 0 {
				continue
			}

			crossVenue := buyVenue != sellVenue
			if crossVenue && !transfers.HasTransferPath(buyVenue, sellVenue) {
				drops = append(drops, Drop{Strategy: model.StrategyRoundtrip, Pair: pair, BuyVenue: buyVenue, SellVenue: sellVenue, Reason: DropNoTransferPath})
				continue
			}

			if reason, ok := p2pLegAllowed(buyQ, exec); !ok {
				drops = append(drops, Drop{Strategy: model.StrategyRoundtrip, Pair: pair, BuyVenue: buyVenue, SellVenue: sellVenue, Reason: reason})
				continue
			}
			if reason, ok := p2pLegAllowed(sellQ, exec); !ok {
				drops = append(drops, Drop{Strategy: model.StrategyRoundtrip, Pair: pair, BuyVenue: buyVenue, SellVenue: sellVenue, Reason: reason})
				continue
			}

			notional := b.executableNotional(buyQ, sellQ)
			if notional <= 0 {
				drops = append(drops, Drop{Strategy: model.StrategyRoundtrip, Pair: pair, BuyVenue: buyVenue, SellVenue: sellVenue, Reason: DropZeroNotional})
				continue
			}

			fiat := p2pFiat(buyQ, sellQ, pair)
			threshold := b.resolver.Resolve(model.ThresholdContext{Strategy: model.StrategyRoundtrip, Pair: pair, Fiat: fiat})

			gross := (sellQ.Bid - buyQ.Ask) / buyQ.Ask * 100
			net := gross - b.legCostPercent(buyVenue, pair) - b.legCostPercent(sellVenue, pair)
			if net <= threshold {
				if gross > 0 {
					drops = append(drops, Drop{Strategy: model.StrategyRoundtrip, Pair: pair, BuyVenue: buyVenue, SellVenue: sellVenue, Reason: DropBelowThreshold})
				}
				continue
			}

			opps = append(opps, model.Opportunity{
				ID:            uuid.NewString(),
				Strategy:      model.StrategyRoundtrip,
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
					"cross_venue":         strconv.FormatBool(crossVenue),
					"direction":           direction(buyQ, sellQ),
					"payment_method":      matchedMethod(exec, buyQ, sellQ),
					"executable_notional": fmt.Sprintf("%.2f", notional),
				},
				Timestamp: time.Now(),
			})
		}
	}
	return opps, drops
}

// TransferChecker answers whether assets can move between two venues.
type TransferChecker interface {
	HasTransferPath(from, to string) bool
}

func direction(buy, sell *model.Quote) string {
	if buy.Kind == model.KindP2P {
		return "p2p_to_spot"
	}
	return "spot_to_p2p"
}
