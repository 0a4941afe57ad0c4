package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// KrakenAdapter serves spot tickers from the Kraken REST API.
type KrakenAdapter struct {
	client *Client
}

// NewKrakenAdapter creates a Kraken spot adapter.
func NewKrakenAdapter(client *Client) *KrakenAdapter {
	return &KrakenAdapter{client: client}
}

func (k *KrakenAdapter) Name() string { return "kraken" }

// NormalizeSymbol maps BASE/QUOTE to Kraken's pair naming. Kraken calls
// bitcoin XBT.
func (k *KrakenAdapter) NormalizeSymbol(pair string) string {
	s := strings.ToUpper(pair)
	s = strings.ReplaceAll(s, "BTC", "XBT")
	return strings.ReplaceAll(s, "/", "")
}

type krakenTickerResponse struct {
	Error  []string `json:"error"`
	Result map[string]struct {
		Ask []string `json:"a"`
		Bid []string `json:"b"`
	} `json:"result"`
}

// FetchQuote returns the current best bid/ask for a pair.
func (k *KrakenAdapter) FetchQuote(ctx context.Context, pair string) (*model.Quote, error) {
	symbol := k.NormalizeSymbol(pair)
	url := fmt.Sprintf("https://api.kraken.com/0/public/Ticker?pair=%s", symbol)

	var resp krakenTickerResponse
	if err := k.client.GetJSON(ctx, k.Name(), []string{url}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		// Unknown pair comes back as an API error, not an HTTP failure.
		if strings.Contains(resp.Error[0], "Unknown asset pair") {
			return nil, nil
		}
		return nil, model.NewInvalidQuoteError(k.Name(), strings.Join(resp.Error, "; "))
	}

	// Kraken keys the result by its own pair alias; take the first entry.
	for _, t := range resp.Result {
		if len(t.Bid) == 0 || len(t.Ask) == 0 {
			return nil, nil
		}
		bid, err1 := strconv.ParseFloat(t.Bid[0], 64)
		ask, err2 := strconv.ParseFloat(t.Ask[0], 64)
		if err1 != nil || err2 != nil {
			return nil, model.NewInvalidQuoteError(k.Name(), "unparseable ticker prices")
		}
		return &model.Quote{
			Symbol:      pair,
			Venue:       k.Name(),
			Bid:         bid,
			Ask:         ask,
			TimestampMS: time.Now().UnixMilli(),
			Kind:        model.KindTicker,
		}, nil
	}
	return nil, nil
}
