// Package vol maintains a per-symbol implied volatility cache with a
// move-triggered and time-triggered refresh policy.
package vol

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mwheeler/gexstream/internal/greeks"
)

// SolveFunc computes implied volatility from an observed price. The default
// is greeks.ImpliedVol; tests inject counters and canned results.
type SolveFunc func(price, spot, strike, tau, r, q float64, call bool) (float64, error)

// Config holds cache tuning.
type Config struct {
	MoveThreshold float64       // Relative mid move that forces a re-solve (default 0.02)
	TTL           time.Duration // Max entry age before a re-solve (default 60s)
	BaseVol       float64       // Smile fallback base (default 0.20)
	Skew          float64       // Smile fallback slope per unit moneyness (default 1.5)
	Rate          float64       // Risk-free rate passed to the solver
	DivYield      float64       // Dividend yield passed to the solver
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MoveThreshold: 0.02,
		TTL:           60 * time.Second,
		BaseVol:       0.20,
		Skew:          1.5,
		Rate:          0.05,
	}
}

type entry struct {
	sigma  float64   // Cached implied vol, always > 0
	midRef float64   // Mid price the sigma was solved at
	at     time.Time // Commit time; non-decreasing per symbol
}

// Cache is a per-symbol implied-vol cache. One entry per option symbol,
// mutated in place under the mutex so readers never observe a torn entry.
type Cache struct {
	cfg    Config
	logger *slog.Logger
	solve  SolveFunc
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	solves  int64
}

// New creates a Cache backed by the Black-Scholes implied-vol solver.
func New(cfg Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		cfg:     cfg,
		logger:  logger,
		solve:   greeks.ImpliedVol,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Sigma returns the implied volatility for symbol, re-solving from the
// quote mid when the entry is missing, stale, or the mid has moved beyond
// the threshold. It never fails: on any solver error it falls back to the
// previous cached value if one exists, else a moneyness-based smile
// estimate.
func (c *Cache) Sigma(symbol string, mid, spot, strike, tau float64, call bool) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	prev, ok := c.entries[symbol]

	if ok && !c.stale(prev, mid, now) {
		return prev.sigma
	}

	sigma, err := c.trySolve(mid, spot, strike, tau, call)
	if err != nil {
		if ok {
			// Keep the last committed sigma; refresh the reference so a
			// broken quote does not force a solve on every trade.
			c.logger.Debug("vol solve failed, keeping cached sigma",
				"symbol", symbol, "error", err)
			sigma = prev.sigma
		} else {
			sigma = c.smile(spot, strike)
			c.logger.Debug("vol solve failed, using smile estimate",
				"symbol", symbol, "sigma", sigma, "error", err)
		}
	}

	c.entries[symbol] = entry{sigma: sigma, midRef: mid, at: now}
	return sigma
}

// Len returns the number of cached symbols.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Solves returns the cumulative number of solver invocations.
func (c *Cache) Solves() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.solves
}

// stale reports whether the entry needs a re-solve for the given mid.
func (c *Cache) stale(e entry, mid float64, now time.Time) bool {
	if now.Sub(e.at) > c.cfg.TTL {
		return true
	}
	if e.midRef <= 0 {
		return true
	}
	return math.Abs(mid-e.midRef)/e.midRef > c.cfg.MoveThreshold
}

// trySolve validates inputs and runs the solver. Counted even on failure so
// tests can assert exact invocation counts.
func (c *Cache) trySolve(mid, spot, strike, tau float64, call bool) (float64, error) {
	if mid <= 0 || spot <= 0 || strike <= 0 || math.IsNaN(mid) {
		return 0, greeks.ErrNoConvergence
	}
	c.solves++
	sigma, err := c.solve(mid, spot, strike, tau, c.cfg.Rate, c.cfg.DivYield, call)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(sigma) || sigma <= 0 {
		return 0, greeks.ErrNoConvergence
	}
	return sigma, nil
}

// smile is the moneyness-based fallback estimate. The exact shape is a
// tunable, not a calibrated surface; it only has to keep the engine
// producing finite gammas when the solver cannot.
func (c *Cache) smile(spot, strike float64) float64 {
	if spot <= 0 || strike <= 0 {
		return c.cfg.BaseVol
	}
	return c.cfg.BaseVol + c.cfg.Skew*math.Abs(strike/spot-1)
}
