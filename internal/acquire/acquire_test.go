package acquire

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/exchange"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/metrics"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// flakyAdapter fails every call until revived.
type flakyAdapter struct {
	name  string
	calls atomic.Int64
	fail  atomic.Bool
}

func (f *flakyAdapter) Name() string                    { return f.name }
func (f *flakyAdapter) NormalizeSymbol(p string) string { return p }

func (f *flakyAdapter) FetchQuote(_ context.Context, pair string) (*model.Quote, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, model.NewTransportError(f.name, errors.New("connection refused"))
	}
	return &model.Quote{
		Symbol: pair, Venue: f.name, Bid: 100, Ask: 101,
		TimestampMS: time.Now().UnixMilli(), Kind: model.KindTicker,
	}, nil
}

func TestFetchCollectsQuotesPerPairPerVenue(t *testing.T) {
	good1 := exchange.NewStaticAdapter("alpha")
	good1.SetQuote("BTC/USDT", model.Quote{Bid: 100, Ask: 101})
	good1.SetQuote("ETH/USDT", model.Quote{Bid: 10, Ask: 10.1})
	good2 := exchange.NewStaticAdapter("beta")
	good2.SetQuote("BTC/USDT", model.Quote{Bid: 102, Ask: 103})

	store := metrics.NewStore(metrics.DefaultStoreConfig())
	acq := New([]exchange.Adapter{good1, good2}, store, nil, 4, time.Second)

	res := acq.Fetch(context.Background(), []string{"BTC/USDT", "ETH/USDT"})

	require.Len(t, res.Quotes["BTC/USDT"], 2)
	require.Len(t, res.Quotes["ETH/USDT"], 1)
	assert.Equal(t, 102.0, res.Quotes["BTC/USDT"]["beta"].Bid)

	// beta has no ETH quote: recorded as a discard, not an error.
	require.Len(t, res.Discards, 1)
	assert.Equal(t, DiscardNoQuote, res.Discards[0].Reason)
	assert.Equal(t, "beta", res.Discards[0].Venue)

	snap := store.Snapshot()
	assert.Equal(t, int64(2), snap["alpha"].Attempts)
	assert.Equal(t, int64(2), snap["beta"].Attempts)
	assert.Equal(t, int64(0), snap["alpha"].Errors)
}

func TestFetchSkipsOpenCircuit(t *testing.T) {
	bad := &flakyAdapter{name: "flaky"}
	bad.fail.Store(true)

	store := metrics.NewStore(metrics.DefaultStoreConfig())
	acq := New([]exchange.Adapter{bad}, store, nil, 2, time.Second)

	// Three failing cycles open the breaker.
	for i := 0; i < metrics.CircuitFailureThreshold; i++ {
		acq.Fetch(context.Background(), []string{"BTC/USDT"})
	}
	require.True(t, store.IsCircuitOpen("flaky"))
	callsBefore := bad.calls.Load()

	res := acq.Fetch(context.Background(), []string{"BTC/USDT"})

	// The adapter was not called; the skip shows up as a discard and a
	// skip counter, not an attempt.
	assert.Equal(t, callsBefore, bad.calls.Load())
	require.Len(t, res.Discards, 1)
	assert.Equal(t, DiscardCircuitOpen, res.Discards[0].Reason)

	snap := store.Snapshot()["flaky"]
	assert.Equal(t, int64(metrics.CircuitFailureThreshold), snap.Attempts)
	assert.Equal(t, int64(1), snap.Skips)
}

func TestFetchErrorBecomesDiscard(t *testing.T) {
	bad := &flakyAdapter{name: "flaky"}
	bad.fail.Store(true)
	good := exchange.NewStaticAdapter("solid")
	good.SetQuote("BTC/USDT", model.Quote{Bid: 1, Ask: 2})

	store := metrics.NewStore(metrics.DefaultStoreConfig())
	acq := New([]exchange.Adapter{bad, good}, store, nil, 2, time.Second)

	res := acq.Fetch(context.Background(), []string{"BTC/USDT"})

	// The failing venue never poisons the healthy one.
	require.Len(t, res.Quotes["BTC/USDT"], 1)
	require.Len(t, res.Discards, 1)
	assert.Equal(t, DiscardFetchError, res.Discards[0].Reason)
}

func TestFetchAttachesDepthWhenSupported(t *testing.T) {
	ad := exchange.NewStaticAdapter("deep")
	ad.SetQuote("BTC/USDT", model.Quote{Bid: 100, Ask: 101})
	ad.SetDepth("BTC/USDT", model.DepthInfo{BestBid: 100, BestAsk: 101, BidVolume: 5, AskVolume: 7, Levels: 10})

	store := metrics.NewStore(metrics.DefaultStoreConfig())
	acq := New([]exchange.Adapter{ad}, store, nil, 1, time.Second)

	res := acq.Fetch(context.Background(), []string{"BTC/USDT"})
	require.NotNil(t, res.Depths["BTC/USDT"]["deep"])
	assert.Equal(t, 7.0, res.Depths["BTC/USDT"]["deep"].AskVolume)
}
