package model

import "time"

// SourceKind identifies how a quote was produced.
type SourceKind string

const (
	KindTicker  SourceKind = "ticker"
	KindP2P     SourceKind = "p2p"
	KindOffline SourceKind = "offline"
)

// Well-known metadata keys attached to quotes by adapters.
const (
	MetaPaymentMethods = "payment_methods"
	MetaReputation     = "reputation"
	MetaMinNotional    = "min_notional"
	MetaMaxNotional    = "max_notional"
	MetaFiat           = "fiat"
	MetaBank           = "bank"
	MetaAdvertiser     = "advertiser"
)

// Quote is a venue's current bid/ask for a trading pair. It is created fresh
// each poll cycle and never mutated after construction. An inverted spread
// (bid > ask) is representable on purpose: it is a failure mode the quality
// validator detects, not a constraint of the type.
type Quote struct {
	Symbol      string            `json:"symbol"`
	Venue       string            `json:"venue"`
	Bid         float64           `json:"bid"`
	Ask         float64           `json:"ask"`
	TimestampMS int64             `json:"ts_ms"`
	Kind        SourceKind        `json:"kind"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Mid returns the midpoint price.
func (q *Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// SpreadPercent returns (ask-bid)/mid as a percentage. Zero when the mid is
// not positive.
func (q *Quote) SpreadPercent() float64 {
	mid := q.Mid()
	if mid <= 0 {
		return 0
	}
	return (q.Ask - q.Bid) / mid * 100
}

// Inverted reports whether the bid crosses the ask.
func (q *Quote) Inverted() bool {
	return q.Bid > q.Ask
}

// Age returns how old the quote is relative to now.
func (q *Quote) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(q.TimestampMS))
}

// MetaValue returns a metadata value, empty when absent.
func (q *Quote) MetaValue(key string) string {
	if q.Meta == nil {
		return ""
	}
	return q.Meta[key]
}

// DepthInfo is an optional order-book companion to a Quote. Venues without a
// depth API never produce one.
type DepthInfo struct {
	BestBid     float64   `json:"best_bid"`
	BestAsk     float64   `json:"best_ask"`
	BidVolume   float64   `json:"bid_volume"`
	AskVolume   float64   `json:"ask_volume"`
	Levels      int       `json:"levels"`
	Timestamp   time.Time `json:"timestamp"`
	Checksum    string    `json:"checksum,omitempty"`
}
