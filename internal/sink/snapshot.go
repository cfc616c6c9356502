// Package sink persists periodic gamma snapshots to TimescaleDB.
//
// Writes are append-only and batched: the engine's emission cadence is
// ~1s, so rows accumulate briefly in memory and flush on size or on a
// ticker. A failed flush is logged and dropped; the engine never blocks on
// the database.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds snapshot writer settings.
type Config struct {
	Underlying    string        // Tagged on every row (e.g. "SPX")
	BatchSize     int           // Rows per flush (default 60)
	FlushInterval time.Duration // Max time a row waits in memory (default 5s)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     60,
		FlushInterval: 5 * time.Second,
	}
}

// Metrics counts writer activity.
type Metrics struct {
	Appends  int64
	Inserts  int64
	Flushes  int64
	Errors   int64
	Conflict int64
}

type snapshotRow struct {
	TS         int64 // µs since epoch
	Underlying string
	TotalGamma float64
}

// SnapshotWriter batches gamma snapshots into the gamma_snapshots table.
// Its Append method satisfies the engine's snapshot callback signature.
type SnapshotWriter struct {
	cfg    Config
	logger *slog.Logger
	db     *pgxpool.Pool

	batch       []snapshotRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewSnapshotWriter creates a writer over the given pool.
func NewSnapshotWriter(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *SnapshotWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &SnapshotWriter{
		cfg:    cfg,
		logger: logger,
		db:     db,
		batch:  make([]snapshotRow, 0, cfg.BatchSize),
	}
}

// Start begins the periodic flush loop.
func (w *SnapshotWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("snapshot writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains the final batch and shuts down.
func (w *SnapshotWriter) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("snapshot writer stopped")
	case <-ctx.Done():
		w.logger.Warn("snapshot writer stop timed out")
	}

	w.flush()
	return nil
}

// Append queues one snapshot row. Matches engine.SnapshotFunc.
func (w *SnapshotWriter) Append(ts time.Time, totalGamma float64) error {
	row := snapshotRow{
		TS:         ts.UnixMicro(),
		Underlying: w.cfg.Underlying,
		TotalGamma: totalGamma,
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	w.metrics.Appends++
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
	return nil
}

// Stats returns current metrics.
func (w *SnapshotWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *SnapshotWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

func (w *SnapshotWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]snapshotRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("snapshot batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch)) - conflicts
	w.metrics.Conflict += conflicts
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed snapshots",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert writes rows in one round trip and reports how many were
// dropped by the conflict clause.
func (w *SnapshotWriter) batchInsert(rows []snapshotRow) (int64, error) {
	if w.db == nil {
		return 0, fmt.Errorf("no database pool")
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO gamma_snapshots (ts, underlying, total_gamma)
			VALUES ($1, $2, $3)
			ON CONFLICT (ts, underlying) DO NOTHING
		`, r.TS, r.Underlying, r.TotalGamma)
	}

	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	var conflicts int64
	for range rows {
		tag, err := results.Exec()
		if err != nil {
			return conflicts, err
		}
		if tag.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
