package acquire

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/exchange"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/metrics"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// Discard reasons produced by acquisition.
const (
	DiscardCircuitOpen  = "circuit_open"
	DiscardFetchError   = "fetch_error"
	DiscardInvalidQuote = "invalid_quote"
	DiscardNoQuote      = "no_quote"
)

// Discard records why a (pair, venue) produced no usable quote this cycle.
type Discard struct {
	Pair   string `json:"pair"`
	Venue  string `json:"venue"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Result is one cycle's worth of raw quotes plus the discard list.
type Result struct {
	Quotes   map[string]map[string]*model.Quote  // pair -> venue -> quote
	Depths   map[string]map[string]*model.DepthInfo
	Discards []Discard
}

// Acquirer fetches quotes from all adapters for all pairs on a bounded
// worker pool, gated per source by the circuit breaker.
type Acquirer struct {
	adapters []exchange.Adapter
	store    *metrics.Store
	notifier *metrics.DegradationNotifier
	workers  int
	timeout  time.Duration
}

// New creates an acquirer. workers bounds concurrent outbound fetches;
// timeout bounds each individual fetch.
func New(adapters []exchange.Adapter, store *metrics.Store, notifier *metrics.DegradationNotifier, workers int, timeout time.Duration) *Acquirer {
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Acquirer{
		adapters: adapters,
		store:    store,
		notifier: notifier,
		workers:  workers,
		timeout:  timeout,
	}
}

type fetchJob struct {
	pair    string
	adapter exchange.Adapter
}

type fetchOutcome struct {
	pair    string
	venue   string
	quote   *model.Quote
	depth   *model.DepthInfo
	discard *Discard
}

// Fetch collects quotes for all pairs across all adapters. Per-source
// failures become discard entries; nothing aborts the cycle.
func (a *Acquirer) Fetch(ctx context.Context, pairs []string) *Result {
	jobs := make(chan fetchJob)
	outcomes := make(chan fetchOutcome)

	var wg sync.WaitGroup
	wg.Add(a.workers)
	for i := 0; i < a.workers; i++ {
		go func() {
			defer wg.Done()
			for job := range jobs {
				outcomes <- a.fetchOne(ctx, job)
			}
		}()
	}

	go func() {
		for _, pair := range pairs {
			for _, ad := range a.adapters {
				jobs <- fetchJob{pair: pair, adapter: ad}
			}
		}
		close(jobs)
		wg.Wait()
		close(outcomes)
	}()

	res := &Result{
		Quotes: make(map[string]map[string]*model.Quote),
		Depths: make(map[string]map[string]*model.DepthInfo),
	}
	for out := range outcomes {
		if out.discard != nil {
			res.Discards = append(res.Discards, *out.discard)
			continue
		}
		if res.Quotes[out.pair] == nil {
			res.Quotes[out.pair] = make(map[string]*model.Quote)
		}
		res.Quotes[out.pair][out.venue] = out.quote
		if out.depth != nil {
			if res.Depths[out.pair] == nil {
				res.Depths[out.pair] = make(map[string]*model.DepthInfo)
			}
			res.Depths[out.pair][out.venue] = out.depth
		}
	}

	if a.notifier != nil {
		a.notifier.CheckAll()
	}
	return res
}

// fetchOne runs a single (pair, adapter) fetch with breaker gating and
// metrics accounting. A timed-out fetch counts as a transport error.
func (a *Acquirer) fetchOne(ctx context.Context, job fetchJob) fetchOutcome {
	venue := job.adapter.Name()

	if a.store.IsCircuitOpen(venue) {
		a.store.RecordSkip(venue)
		return fetchOutcome{discard: &Discard{Pair: job.pair, Venue: venue, Reason: DiscardCircuitOpen}}
	}

	a.store.RecordAttempt(venue)

	fctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	quote, err := job.adapter.FetchQuote(fctx, job.pair)
	if err != nil {
		a.store.RecordError(venue, err.Error())
		reason := DiscardFetchError
		var se *model.SourceError
		if errors.As(err, &se) && se.Code == model.ErrCodeInvalidQuote {
			reason = DiscardInvalidQuote
		}
		log.Debug().Str("venue", venue).Str("pair", job.pair).Err(err).Msg("quote fetch failed")
		return fetchOutcome{discard: &Discard{Pair: job.pair, Venue: venue, Reason: reason, Detail: err.Error()}}
	}
	if quote == nil {
		a.store.RecordSuccess(venue)
		return fetchOutcome{discard: &Discard{Pair: job.pair, Venue: venue, Reason: DiscardNoQuote}}
	}

	a.store.RecordSuccess(venue)

	out := fetchOutcome{pair: job.pair, venue: venue, quote: quote}
	if dp, ok := job.adapter.(exchange.DepthProvider); ok {
		// Depth is best-effort; a failure here never costs the quote.
		if depth, err := dp.FetchDepth(fctx, job.pair); err == nil && depth != nil {
			out.depth = depth
		}
	}
	return out
}
