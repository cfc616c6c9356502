// Package book implements the strike ledger: cumulative per-strike open
// contract counts and signed dealer gamma.
package book

import (
	"sync"

	"github.com/mwheeler/gexstream/internal/model"
)

// Key identifies a ledger row: one (strike, right) pair.
type Key struct {
	Strike int
	Call   bool
}

// Row is the cumulative state for one key. NetGamma is signed from the
// dealer's perspective: customer buys push the dealer short gamma
// (subtract), customer sells push the dealer long gamma (add).
type Row struct {
	OpenLong  int64
	OpenShort int64
	NetGamma  float64
}

// Book accumulates rows for the lifetime of a session. Rows are created
// lazily on first touch and never deleted. All methods are safe for
// concurrent use; each Update is atomic from the reader's perspective.
type Book struct {
	mu   sync.RWMutex
	rows map[Key]*Row
}

// New returns an empty Book.
func New() *Book {
	return &Book{rows: make(map[Key]*Row)}
}

// Update applies one classified trade to the ledger. Unknown sides are
// filtered upstream; Update ignores them rather than guessing.
func (b *Book) Update(key Key, side model.Side, contracts int64, gammaPerContract float64) {
	if contracts <= 0 || (side != model.SideBuy && side != model.SideSell) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	row, ok := b.rows[key]
	if !ok {
		row = &Row{}
		b.rows[key] = row
	}

	switch side {
	case model.SideBuy:
		row.OpenLong += contracts
		row.NetGamma -= gammaPerContract * float64(contracts)
	case model.SideSell:
		row.OpenShort += contracts
		row.NetGamma += gammaPerContract * float64(contracts)
	}
}

// Row returns a copy of the row for key, and whether it exists.
func (b *Book) Row(key Key) (Row, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	row, ok := b.rows[key]
	if !ok {
		return Row{}, false
	}
	return *row, true
}

// TotalGamma returns the sum of NetGamma across all rows. Recomputed on
// demand; O(number of distinct keys).
func (b *Book) TotalGamma() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total float64
	for _, row := range b.rows {
		total += row.NetGamma
	}
	return total
}

// Rows returns a copy of all rows, for reporting.
func (b *Book) Rows() map[Key]Row {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[Key]Row, len(b.rows))
	for k, row := range b.rows {
		out[k] = *row
	}
	return out
}

// Size returns the number of distinct keys touched this session.
func (b *Book) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rows)
}
