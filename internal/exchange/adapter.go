package exchange

import (
	"context"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// Adapter is the capability contract every quote source implements.
// FetchQuote returns (nil, nil) when the venue simply has no quote for the
// pair; transport and invalid-quote failures come back as *model.SourceError
// so acquisition can account for them without ever aborting a cycle.
type Adapter interface {
	Name() string
	NormalizeSymbol(pair string) string
	FetchQuote(ctx context.Context, pair string) (*model.Quote, error)
}

// DepthProvider is implemented by adapters whose venue exposes an order-book
// API. Acquisition probes for it with a type assertion.
type DepthProvider interface {
	FetchDepth(ctx context.Context, pair string) (*model.DepthInfo, error)
}
