package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Side is the inferred aggressor side of a trade, from the customer's
// perspective. The dealer takes the opposite side.
type Side int

const (
	// SideUnknown means no inference could be made (mid-market print or no
	// quote). Trades classified as unknown are dropped upstream of the ledger.
	SideUnknown Side = iota

	// SideBuy means the customer lifted the offer; the dealer sold.
	SideBuy

	// SideSell means the customer hit the bid; the dealer bought.
	SideSell
)

// String returns a human-readable side name.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OptionSymbol is a parsed exchange option symbol. Immutable once parsed.
type OptionSymbol struct {
	Root   string    // Underlying root (e.g. "SPXW")
	Expiry time.Time // Expiry date, midnight UTC
	Strike int       // Strike in whole dollars
	Call   bool      // true = call, false = put
}

// ExpireTime returns the moment the option stops trading: 16:00 local time
// in the exchange zone on the expiry date.
func (s OptionSymbol) ExpireTime(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(s.Expiry.Year(), s.Expiry.Month(), s.Expiry.Day(), 16, 0, 0, 0, loc)
}

// Quote is a snapshot of the best bid/ask for one option symbol. Quotes are
// stored as immutable values and replaced atomically, so a reader always
// sees a bid/ask pair that was published together.
type Quote struct {
	Bid       float64 // Best bid, dollars; 0 = no bid
	Ask       float64 // Best ask, dollars; 0 = no ask
	UpdatedAt int64   // Vendor timestamp (µs since epoch), 0 if not provided
}

// Valid reports whether both sides of the quote are present and coherent.
func (q Quote) Valid() bool {
	return q.Bid > 0 && q.Ask > 0 && q.Bid <= q.Ask &&
		!math.IsInf(q.Bid, 0) && !math.IsInf(q.Ask, 0)
}

// Mid returns the quote midpoint.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Trade is a normalized option trade, constructed once at the ingress
// boundary and discarded after the update cycle.
type Trade struct {
	ID         uuid.UUID // Vendor trade ID when present, otherwise generated
	Symbol     string    // Raw option symbol as received
	Price      float64   // Trade price, dollars
	Size       int64     // Number of contracts, > 0
	Time       time.Time // Exchange timestamp, normalized from s/ns
	ReceivedAt time.Time // Local receive timestamp
}

// GammaSnapshot is one periodic emission of the aggregate dealer gamma.
// Produced once per cadence tick and handed to the sink; not retained.
type GammaSnapshot struct {
	TS         time.Time // Emission time
	Underlying string    // Underlying root (e.g. "SPX")
	TotalGamma float64   // Signed dealer gamma summed over all strikes
}
