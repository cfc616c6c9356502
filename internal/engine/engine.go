package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mwheeler/gexstream/internal/book"
	"github.com/mwheeler/gexstream/internal/classify"
	"github.com/mwheeler/gexstream/internal/greeks"
	"github.com/mwheeler/gexstream/internal/model"
	"github.com/mwheeler/gexstream/internal/occ"
	"github.com/mwheeler/gexstream/internal/queue"
	"github.com/mwheeler/gexstream/internal/vol"
)

// RawMessage is one undecoded trade event pulled off the inbound queue.
type RawMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// QuoteSource is the read side of the externally-maintained NBBO store.
type QuoteSource interface {
	Lookup(symbol string) (model.Quote, bool)
}

// SpotSource provides the latest underlying index level.
type SpotSource interface {
	Get() (float64, bool)
}

// SnapshotFunc receives each periodic gamma emission. It may do its own
// I/O; errors and panics are logged and never stop the loop.
type SnapshotFunc func(ts time.Time, totalGamma float64) error

// Config holds engine tuning. Zero values are replaced by defaults.
type Config struct {
	Epsilon          float64       // Classifier tolerance, dollars (default 0.05)
	SnapshotInterval time.Duration // Emission cadence (default 1s)
	RecvTimeout      time.Duration // Bounded wait on an empty queue (default 500ms)
	Rate             float64       // Risk-free rate (default 0.05)
	DivYield         float64       // Dividend yield (default 0)
	Multiplier       float64       // Contract multiplier (default 100)
	Vol              vol.Config    // Volatility cache tuning
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Epsilon:          classify.DefaultEpsilon,
		SnapshotInterval: time.Second,
		RecvTimeout:      500 * time.Millisecond,
		Rate:             0.05,
		Multiplier:       100,
		Vol:              vol.DefaultConfig(),
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Epsilon == 0 {
		c.Epsilon = d.Epsilon
	}
	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = d.SnapshotInterval
	}
	if c.RecvTimeout == 0 {
		c.RecvTimeout = d.RecvTimeout
	}
	if c.Multiplier == 0 {
		c.Multiplier = d.Multiplier
	}
	if c.Vol.TTL == 0 {
		c.Vol = d.Vol
	}
	c.Vol.Rate = c.Rate
	c.Vol.DivYield = c.DivYield
}

// Stats counts every outcome of the loop. Dropped trades are expected and
// frequent against a noisy feed; none of them are errors.
type Stats struct {
	Received  int64
	Processed int64

	DroppedDecode    int64
	DroppedSymbol    int64
	DroppedNoQuote   int64
	DroppedAmbiguous int64
	DroppedExpired   int64
	DroppedNoSpot    int64
	DroppedGamma     int64

	Snapshots      int64
	SnapshotErrors int64
}

// Engine is the single-consumer streaming aggregation loop. It owns the
// strike ledger and the volatility cache; the NBBO store, spot tracker,
// inbound queue, and snapshot sink are injected collaborators.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	input *queue.Buffer[RawMessage]
	nbbo  QuoteSource
	spot  SpotSource
	emit  SnapshotFunc

	vols *vol.Cache
	book *book.Book

	loc *time.Location
	now func() time.Time

	mu    sync.Mutex
	stats Stats
}

// New constructs an Engine with an empty ledger and cache.
func New(cfg Config, input *queue.Buffer[RawMessage], quotes QuoteSource, spot SpotSource, emit SnapshotFunc, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// No tzdata on this host; a fixed offset is close enough for the
		// 16:00 expiry cutoff.
		loc = time.FixedZone("ET", -5*3600)
		logger.Warn("tzdata unavailable, using fixed ET offset", "error", err)
	}

	return &Engine{
		cfg:    cfg,
		logger: logger,
		input:  input,
		nbbo:   quotes,
		spot:   spot,
		emit:   emit,
		vols:   vol.New(cfg.Vol, logger),
		book:   book.New(),
		loc:    loc,
		now:    time.Now,
	}
}

// Book exposes the ledger for reporting.
func (e *Engine) Book() *book.Book { return e.book }

// VolCache exposes the volatility cache for reporting.
func (e *Engine) VolCache() *vol.Cache { return e.vols }

// Stats returns a snapshot of loop counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Run consumes trades until ctx is cancelled. Data errors drop single
// trades; nothing in the loop is fatal.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("aggregation loop started",
		"epsilon", e.cfg.Epsilon,
		"snapshot_interval", e.cfg.SnapshotInterval,
		"recv_timeout", e.cfg.RecvTimeout,
	)

	lastEmit := e.now()
	timer := time.NewTimer(e.cfg.RecvTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("aggregation loop stopped", "reason", ctx.Err())
			return ctx.Err()
		default:
		}

		if raw, ok := e.input.TryReceive(); ok {
			e.process(raw)
		} else {
			// Empty queue: bounded wait, then re-check the clock.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(e.cfg.RecvTimeout)
			select {
			case <-ctx.Done():
				e.logger.Info("aggregation loop stopped", "reason", ctx.Err())
				return ctx.Err()
			case <-timer.C:
			}
		}

		if now := e.now(); now.Sub(lastEmit) >= e.cfg.SnapshotInterval {
			e.emitSnapshot(now)
			lastEmit = now
		}
	}
}

// process runs one trade through the full pipeline:
// decode -> parse symbol -> NBBO -> classify -> expiry -> vol -> gamma -> ledger.
// Every failure drops this trade only.
func (e *Engine) process(raw RawMessage) {
	e.bump(func(s *Stats) { s.Received++ })

	trade, err := decodeTrade(raw)
	if err != nil {
		e.drop(&e.stats.DroppedDecode, "decode failed", "error", err)
		return
	}

	sym, err := occ.Parse(trade.Symbol)
	if err != nil {
		e.drop(&e.stats.DroppedSymbol, "bad symbol", "symbol", trade.Symbol)
		return
	}

	q, ok := e.nbbo.Lookup(trade.Symbol)
	if !ok || !q.Valid() {
		e.drop(&e.stats.DroppedNoQuote, "no NBBO", "symbol", trade.Symbol)
		return
	}

	side := classify.Classify(trade.Price, q, e.cfg.Epsilon)
	if side == model.SideUnknown {
		e.drop(&e.stats.DroppedAmbiguous, "ambiguous print", "symbol", trade.Symbol, "price", trade.Price)
		return
	}

	remaining := sym.ExpireTime(e.loc).Sub(trade.Time)
	if remaining <= 0 {
		e.drop(&e.stats.DroppedExpired, "option expired", "symbol", trade.Symbol)
		return
	}
	tau := greeks.FloorTau(remaining.Hours() / (24 * 365))

	spot, ok := e.spot.Get()
	if !ok {
		e.drop(&e.stats.DroppedNoSpot, "no underlying spot yet", "symbol", trade.Symbol)
		return
	}

	// Sigma comes from the quote mid, not the trade price: the print may
	// sit at the touch, the surface should not.
	sigma := e.vols.Sigma(trade.Symbol, q.Mid(), spot, float64(sym.Strike), tau, sym.Call)

	g := greeks.Gamma(spot, float64(sym.Strike), sigma, tau, e.cfg.Rate, e.cfg.DivYield, sym.Call)
	if math.IsNaN(g) || g <= 0 {
		e.drop(&e.stats.DroppedGamma, "unusable gamma", "symbol", trade.Symbol, "gamma", g)
		return
	}

	key := book.Key{Strike: sym.Strike, Call: sym.Call}
	e.book.Update(key, side, trade.Size, g*e.cfg.Multiplier)

	e.bump(func(s *Stats) { s.Processed++ })
	e.logger.Debug("trade applied",
		"trade_id", trade.ID,
		"symbol", trade.Symbol,
		"side", side,
		"size", trade.Size,
		"gamma", g,
	)
}

// emitSnapshot invokes the snapshot sink with the current total gamma.
// Sink failures are logged and ignored; the ledger is never rolled back.
func (e *Engine) emitSnapshot(now time.Time) {
	if e.emit == nil {
		return
	}

	total := e.book.TotalGamma()
	if err := e.callSink(now, total); err != nil {
		e.bump(func(s *Stats) { s.SnapshotErrors++ })
		e.logger.Warn("snapshot sink failed", "error", err)
		return
	}
	e.bump(func(s *Stats) { s.Snapshots++ })
}

// callSink shields the loop from a panicking sink.
func (e *Engine) callSink(ts time.Time, total float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("snapshot sink panic: %v", r)
		}
	}()
	return e.emit(ts, total)
}

func (e *Engine) bump(f func(*Stats)) {
	e.mu.Lock()
	f(&e.stats)
	e.mu.Unlock()
}

// drop counts and debug-logs one discarded trade. Missing market context
// is expected against a partial feed, so nothing here logs above Debug.
func (e *Engine) drop(counter *int64, msg string, args ...any) {
	e.mu.Lock()
	*counter++
	e.mu.Unlock()
	e.logger.Debug(msg, args...)
}
