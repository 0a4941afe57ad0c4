package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

var binanceEndpoints = []string{
	"https://api.binance.com",
	"https://api1.binance.com",
	"https://api2.binance.com",
}

// BinanceAdapter serves spot book tickers from the Binance REST API.
type BinanceAdapter struct {
	client    *Client
	endpoints []string
}

// NewBinanceAdapter creates a Binance spot adapter.
func NewBinanceAdapter(client *Client) *BinanceAdapter {
	return &BinanceAdapter{client: client, endpoints: binanceEndpoints}
}

func (b *BinanceAdapter) Name() string { return "binance" }

// NormalizeSymbol maps BASE/QUOTE to Binance's concatenated form.
func (b *BinanceAdapter) NormalizeSymbol(pair string) string {
	return strings.ReplaceAll(strings.ToUpper(pair), "/", "")
}

type binanceBookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	BidQty   string `json:"bidQty"`
	AskPrice string `json:"askPrice"`
	AskQty   string `json:"askQty"`
}

// FetchQuote returns the current best bid/ask for a pair.
func (b *BinanceAdapter) FetchQuote(ctx context.Context, pair string) (*model.Quote, error) {
	symbol := b.NormalizeSymbol(pair)
	urls := make([]string, len(b.endpoints))
	for i, ep := range b.endpoints {
		urls[i] = fmt.Sprintf("%s/api/v3/ticker/bookTicker?symbol=%s", ep, symbol)
	}

	var t binanceBookTicker
	if err := b.client.GetJSON(ctx, b.Name(), urls, &t); err != nil {
		return nil, err
	}
	if t.Symbol == "" {
		return nil, nil
	}

	bid, err1 := strconv.ParseFloat(t.BidPrice, 64)
	ask, err2 := strconv.ParseFloat(t.AskPrice, 64)
	if err1 != nil || err2 != nil {
		return nil, model.NewInvalidQuoteError(b.Name(), fmt.Sprintf("unparseable prices bid=%q ask=%q", t.BidPrice, t.AskPrice))
	}

	return &model.Quote{
		Symbol:      pair,
		Venue:       b.Name(),
		Bid:         bid,
		Ask:         ask,
		TimestampMS: time.Now().UnixMilli(),
		Kind:        model.KindTicker,
	}, nil
}

type binanceDepth struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// FetchDepth returns aggregated top-of-book volume.
func (b *BinanceAdapter) FetchDepth(ctx context.Context, pair string) (*model.DepthInfo, error) {
	symbol := b.NormalizeSymbol(pair)
	urls := make([]string, len(b.endpoints))
	for i, ep := range b.endpoints {
		urls[i] = fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=20", ep, symbol)
	}

	var d binanceDepth
	if err := b.client.GetJSON(ctx, b.Name(), urls, &d); err != nil {
		return nil, err
	}
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		return nil, nil
	}

	info := &model.DepthInfo{
		Levels:    len(d.Bids),
		Timestamp: time.Now(),
		Checksum:  strconv.FormatInt(d.LastUpdateID, 10),
	}
	for i, lvl := range d.Bids {
		price, _ := strconv.ParseFloat(lvl[0], 64)
		qty, _ := strconv.ParseFloat(lvl[1], 64)
		if i == 0 {
			info.BestBid = price
		}
		info.BidVolume += qty
	}
	for i, lvl := range d.Asks {
		price, _ := strconv.ParseFloat(lvl[0], 64)
		qty, _ := strconv.ParseFloat(lvl[1], 64)
		if i == 0 {
			info.BestAsk = price
		}
		info.AskVolume += qty
	}
	return info, nil
}
