package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

const (
	wsMaxBackoff = 16 * time.Second
	// wsMaxQuoteAge bounds how stale a streamed quote may be before the
	// adapter reports no quote; the quality validator applies the tighter
	// configured ceilings on top.
	wsMaxQuoteAge = 2 * time.Minute
)

// WSFeedAdapter keeps a last-quote cache fed by an exchange bookTicker
// websocket stream and serves FetchQuote from it without touching the
// network on the hot path. Start must be running for quotes to stay fresh.
type WSFeedAdapter struct {
	name  string
	url   string
	pairs []string

	mu     sync.RWMutex
	quotes map[string]*model.Quote
}

// NewBinanceWSFeed creates a streaming adapter over Binance's combined
// bookTicker stream for the given pairs.
func NewBinanceWSFeed(pairs []string) *WSFeedAdapter {
	streams := make([]string, len(pairs))
	for i, p := range pairs {
		streams[i] = strings.ToLower(strings.ReplaceAll(p, "/", "")) + "@bookTicker"
	}
	return &WSFeedAdapter{
		name:   "binancews",
		url:    "wss://stream.binance.com:9443/stream?streams=" + strings.Join(streams, "/"),
		pairs:  pairs,
		quotes: make(map[string]*model.Quote),
	}
}

func (w *WSFeedAdapter) Name() string { return w.name }

func (w *WSFeedAdapter) NormalizeSymbol(pair string) string {
	return strings.ReplaceAll(strings.ToUpper(pair), "/", "")
}

// FetchQuote serves the last streamed quote for the pair, or no quote when
// the stream has not delivered one recently enough.
func (w *WSFeedAdapter) FetchQuote(_ context.Context, pair string) (*model.Quote, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	q, ok := w.quotes[w.NormalizeSymbol(pair)]
	if !ok || q.Age(time.Now()) > wsMaxQuoteAge {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

type wsCombinedMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Bid    string `json:"b"`
		Ask    string `json:"a"`
	} `json:"data"`
}

// Start maintains the stream connection until the context ends, reconnecting
// with doubling backoff after failures.
func (w *WSFeedAdapter) Start(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
		if err != nil {
			log.Warn().Str("source", w.name).Err(err).Dur("backoff", backoff).Msg("websocket dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > wsMaxBackoff {
				backoff = wsMaxBackoff
			}
			continue
		}
		backoff = time.Second
		log.Info().Str("source", w.name).Int("pairs", len(w.pairs)).Msg("websocket stream connected")

		w.readLoop(ctx, conn)
		conn.Close()
	}
}

func (w *WSFeedAdapter) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Str("source", w.name).Err(err).Msg("websocket read failed, reconnecting")
			return
		}

		var msg wsCombinedMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Data.Symbol == "" {
			continue
		}

		bid, err1 := strconv.ParseFloat(msg.Data.Bid, 64)
		ask, err2 := strconv.ParseFloat(msg.Data.Ask, 64)
		if err1 != nil || err2 != nil {
			continue
		}

		w.mu.Lock()
		w.quotes[msg.Data.Symbol] = &model.Quote{
			Symbol:      w.pairFor(msg.Data.Symbol),
			Venue:       w.name,
			Bid:         bid,
			Ask:         ask,
			TimestampMS: time.Now().UnixMilli(),
			Kind:        model.KindTicker,
		}
		w.mu.Unlock()
	}
}

// pairFor maps a venue-native symbol back to the configured BASE/QUOTE form.
func (w *WSFeedAdapter) pairFor(symbol string) string {
	for _, p := range w.pairs {
		if w.NormalizeSymbol(p) == symbol {
			return p
		}
	}
	return symbol
}

// String implements fmt.Stringer for log friendliness.
func (w *WSFeedAdapter) String() string {
	return fmt.Sprintf("wsfeed(%s)", w.name)
}
