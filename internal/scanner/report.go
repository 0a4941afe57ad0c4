package scanner

import (
	"sync"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/metrics"
	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

// ReportStore holds the latest cycle report behind a mutex. Reads return
// deep copies so callers can never observe a later cycle's mutations through
// a held reference.
type ReportStore struct {
	mu   sync.RWMutex
	last *CycleReport
}

// NewReportStore creates an empty store.
func NewReportStore() *ReportStore {
	return &ReportStore{}
}

// Put replaces the stored report.
func (s *ReportStore) Put(r *CycleReport) {
	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
}

// Last returns a deep copy of the latest report, or nil before the first
// cycle.
func (s *ReportStore) Last() *CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	return s.last.clone()
}

func (r *CycleReport) clone() *CycleReport {
	out := &CycleReport{
		StartedAt: r.StartedAt,
		Duration:  r.Duration,
	}

	out.Opportunities = make([]model.Opportunity, len(r.Opportunities))
	for i, o := range r.Opportunities {
		out.Opportunities[i] = cloneOpportunity(o)
	}

	out.Triangular = make([]model.TriangularOpportunity, len(r.Triangular))
	for i, o := range r.Triangular {
		c := o
		c.Legs = append([]model.TriangleLeg(nil), o.Legs...)
		c.LegPrices = append([]float64(nil), o.LegPrices...)
		out.Triangular[i] = c
	}

	out.Denied = make([]AdmissionDenial, len(r.Denied))
	for i, d := range r.Denied {
		out.Denied[i] = AdmissionDenial{
			Opportunity: cloneOpportunity(d.Opportunity),
			Decision:    d.Decision,
		}
	}

	out.Drops = append(out.Drops, r.Drops...)
	out.Discards = append(out.Discards, r.Discards...)

	out.QualityRejects = make([]QualityReject, len(r.QualityRejects))
	for i, q := range r.QualityRejects {
		c := q
		c.Reasons = append([]string(nil), q.Reasons...)
		out.QualityRejects[i] = c
	}

	if r.Sources != nil {
		out.Sources = make(map[string]metrics.SourceSnapshot, len(r.Sources))
		for name, snap := range r.Sources {
			out.Sources[name] = snap
		}
	}
	return out
}

func cloneOpportunity(o model.Opportunity) model.Opportunity {
	c := o
	if o.Notes != nil {
		c.Notes = make(map[string]string, len(o.Notes))
		for k, v := range o.Notes {
			c.Notes[k] = v
		}
	}
	if o.BuyDepth != nil {
		d := *o.BuyDepth
		c.BuyDepth = &d
	}
	if o.SellDepth != nil {
		d := *o.SellDepth
		c.SellDepth = &d
	}
	return c
}
