package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

const binanceP2PSearchURL = "https://p2p.binance.com/bapi/c2c/v2/friendly/c2c/adv/search"

// BinanceP2PAdapter reads the Binance P2P marketplace. A quote's bid is the
// best BUY-side advertisement (someone buying the asset from you), the ask
// the best SELL-side one, each carrying advertiser metadata the execution
// filters consume.
type BinanceP2PAdapter struct {
	client *Client
	fiat   string
}

// NewBinanceP2PAdapter creates a P2P adapter for one fiat market.
func NewBinanceP2PAdapter(client *Client, fiat string) *BinanceP2PAdapter {
	return &BinanceP2PAdapter{client: client, fiat: strings.ToUpper(fiat)}
}

func (b *BinanceP2PAdapter) Name() string { return "binancep2p" }

// NormalizeSymbol returns the crypto asset side of a pair; P2P markets are
// keyed by asset and fiat, not by pair string.
func (b *BinanceP2PAdapter) NormalizeSymbol(pair string) string {
	base, _, _ := strings.Cut(strings.ToUpper(pair), "/")
	return base
}

type p2pSearchResponse struct {
	Code string `json:"code"`
	Data []struct {
		Adv struct {
			Price               string `json:"price"`
			MinSingleTransAmt   string `json:"minSingleTransAmount"`
			MaxSingleTransAmt   string `json:"maxSingleTransAmount"`
			TradeMethods        []struct {
				Identifier string `json:"identifier"`
			} `json:"tradeMethods"`
		} `json:"adv"`
		Advertiser struct {
			NickName          string `json:"nickName"`
			MonthFinishRate   float64 `json:"monthFinishRate"`
		} `json:"advertiser"`
	} `json:"data"`
}

// FetchQuote queries both sides of the book and merges them into one quote.
// The pair's quote currency must match the adapter's fiat market, otherwise
// the venue has no quote for it.
func (b *BinanceP2PAdapter) FetchQuote(ctx context.Context, pair string) (*model.Quote, error) {
	asset, fiat, ok := strings.Cut(strings.ToUpper(pair), "/")
	if !ok || fiat != b.fiat {
		return nil, nil
	}

	// BUY side: advertisers buying the asset, i.e. the price we can sell at.
	bid, bidMeta, err := b.bestAdv(ctx, asset, "BUY")
	if err != nil {
		return nil, err
	}
	ask, askMeta, err := b.bestAdv(ctx, asset, "SELL")
	if err != nil {
		return nil, err
	}
	if bid == 0 && ask == 0 {
		return nil, nil
	}

	meta := map[string]string{model.MetaFiat: b.fiat}
	for k, v := range askMeta {
		meta[k] = v
	}
	// Reputation reflects the weaker of the two counterparties.
	if rep := bidMeta[model.MetaReputation]; rep != "" {
		bidRep, _ := strconv.ParseFloat(rep, 64)
		askRep, _ := strconv.ParseFloat(meta[model.MetaReputation], 64)
		if meta[model.MetaReputation] == "" || bidRep < askRep {
			meta[model.MetaReputation] = rep
		}
	}

	return &model.Quote{
		Symbol:      pair,
		Venue:       b.Name(),
		Bid:         bid,
		Ask:         ask,
		TimestampMS: time.Now().UnixMilli(),
		Kind:        model.KindP2P,
		Meta:        meta,
	}, nil
}

func (b *BinanceP2PAdapter) bestAdv(ctx context.Context, asset, side string) (float64, map[string]string, error) {
	body := fmt.Sprintf(`{"asset":%q,"fiat":%q,"tradeType":%q,"page":1,"rows":1}`, asset, b.fiat, side)

	var resp p2pSearchResponse
	if err := b.client.PostJSON(ctx, b.Name(), []string{binanceP2PSearchURL}, body, &resp); err != nil {
		return 0, nil, err
	}
	if len(resp.Data) == 0 {
		return 0, nil, nil
	}

	adv := resp.Data[0]
	price, err := strconv.ParseFloat(adv.Adv.Price, 64)
	if err != nil {
		return 0, nil, model.NewInvalidQuoteError(b.Name(), fmt.Sprintf("unparseable adv price %q", adv.Adv.Price))
	}

	methods := make([]string, 0, len(adv.Adv.TradeMethods))
	for _, m := range adv.Adv.TradeMethods {
		methods = append(methods, m.Identifier)
	}
	meta := map[string]string{
		model.MetaPaymentMethods: strings.Join(methods, ","),
		model.MetaReputation:     strconv.FormatFloat(adv.Advertiser.MonthFinishRate, 'f', 4, 64),
		model.MetaMinNotional:    adv.Adv.MinSingleTransAmt,
		model.MetaMaxNotional:    adv.Adv.MaxSingleTransAmt,
		model.MetaAdvertiser:     adv.Advertiser.NickName,
	}
	return price, meta, nil
}
