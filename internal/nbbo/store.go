// Package nbbo holds the externally-maintained best bid/ask per option
// symbol and the latest underlying index level.
//
// The quote stream consumer writes, the aggregation loop reads. Quotes are
// immutable values replaced whole, so a reader never sees a bid from one
// update paired with an ask from another.
package nbbo

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mwheeler/gexstream/internal/model"
)

// Store maps option symbol to the latest NBBO.
type Store struct {
	quotes sync.Map // string -> model.Quote
	count  atomic.Int64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the quote for symbol atomically.
func (s *Store) Set(symbol string, q model.Quote) {
	if _, loaded := s.quotes.Swap(symbol, q); !loaded {
		s.count.Add(1)
	}
}

// Lookup returns a snapshot copy of the latest quote for symbol.
func (s *Store) Lookup(symbol string) (model.Quote, bool) {
	v, ok := s.quotes.Load(symbol)
	if !ok {
		return model.Quote{}, false
	}
	return v.(model.Quote), true
}

// Len returns the number of symbols with a quote.
func (s *Store) Len() int {
	return int(s.count.Load())
}

type spotValue struct {
	price float64
	at    time.Time
}

// SpotTracker holds the most recent underlying index value, replaced
// atomically by the feed and read by the engine.
type SpotTracker struct {
	v atomic.Value // spotValue
}

// NewSpotTracker returns an empty tracker.
func NewSpotTracker() *SpotTracker {
	return &SpotTracker{}
}

// Set records a new index level.
func (t *SpotTracker) Set(price float64, at time.Time) {
	if price <= 0 {
		return
	}
	t.v.Store(spotValue{price: price, at: at})
}

// Get returns the latest index level, or false if none has been seen.
func (t *SpotTracker) Get() (float64, bool) {
	v := t.v.Load()
	if v == nil {
		return 0, false
	}
	return v.(spotValue).price, true
}
