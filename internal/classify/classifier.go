// Package classify infers the aggressor side of an option trade from its
// price relative to the prevailing NBBO.
package classify

import (
	"math"

	"github.com/mwheeler/gexstream/internal/model"
)

// DefaultEpsilon is the absolute tolerance around bid/ask, in dollars.
const DefaultEpsilon = 0.05

// Classify returns the customer's aggressor side for a trade printed at
// price against quote q, using an absolute tolerance eps around each side.
//
// A print at or above ask-eps is a customer buy (dealer sold); at or below
// bid+eps a customer sell (dealer bought). Mid-market prints return
// SideUnknown and must be dropped by the caller — a conservative default,
// not an error. When the spread is tighter than 2*eps both bands can
// match; the nearer side wins and an exact tie stays unknown, so the
// tolerance is symmetric around bid and ask.
func Classify(price float64, q model.Quote, eps float64) model.Side {
	if !q.Valid() || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return model.SideUnknown
	}

	nearAsk := price >= q.Ask-eps
	nearBid := price <= q.Bid+eps

	switch {
	case nearAsk && nearBid:
		distAsk := math.Abs(q.Ask - price)
		distBid := math.Abs(price - q.Bid)
		// Equidistant up to rounding noise stays ambiguous.
		if math.Abs(distAsk-distBid) <= 1e-9 {
			return model.SideUnknown
		}
		if distAsk < distBid {
			return model.SideBuy
		}
		return model.SideSell
	case nearAsk:
		return model.SideBuy
	case nearBid:
		return model.SideSell
	default:
		return model.SideUnknown
	}
}
