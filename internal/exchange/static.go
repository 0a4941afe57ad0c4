package exchange

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// StaticAdapter serves a fixed quote table. Used for offline venues priced
// out-of-band and as a stand-in source in tests and dry runs.
type StaticAdapter struct {
	name   string
	mu     sync.RWMutex
	quotes map[string]*model.Quote
	depths map[string]*model.DepthInfo
}

// NewStaticAdapter creates an empty static source.
func NewStaticAdapter(name string) *StaticAdapter {
	return &StaticAdapter{
		name:   name,
		quotes: make(map[string]*model.Quote),
		depths: make(map[string]*model.DepthInfo),
	}
}

func (s *StaticAdapter) Name() string { return s.name }

func (s *StaticAdapter) NormalizeSymbol(pair string) string {
	return strings.ToUpper(pair)
}

// SetQuote installs the quote served for a pair. Venue and kind are stamped
// if the caller left them empty.
func (s *StaticAdapter) SetQuote(pair string, q model.Quote) {
	if q.Venue == "" {
		q.Venue = s.name
	}
	if q.Kind == "" {
		q.Kind = model.KindOffline
	}
	if q.TimestampMS == 0 {
		q.TimestampMS = time.Now().UnixMilli()
	}
	if q.Symbol == "" {
		q.Symbol = pair
	}
	s.mu.Lock()
	s.quotes[s.NormalizeSymbol(pair)] = &q
	s.mu.Unlock()
}

// SetDepth installs depth served alongside a pair's quote.
func (s *StaticAdapter) SetDepth(pair string, d model.DepthInfo) {
	s.mu.Lock()
	s.depths[s.NormalizeSymbol(pair)] = &d
	s.mu.Unlock()
}

func (s *StaticAdapter) FetchQuote(_ context.Context, pair string) (*model.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[s.NormalizeSymbol(pair)]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (s *StaticAdapter) FetchDepth(_ context.Context, pair string) (*model.DepthInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.depths[s.NormalizeSymbol(pair)]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}
