package sink

import (
	"context"
	"testing"
	"time"
)

func TestAppend_Batches(t *testing.T) {
	cfg := Config{
		Underlying:    "SPX",
		BatchSize:     100, // large: no auto-flush
		FlushInterval: time.Hour,
	}
	w := NewSnapshotWriter(cfg, nil, nil)

	ts := time.Date(2025, 5, 30, 14, 0, 1, 0, time.UTC)
	if err := w.Append(ts, -1234.5); err != nil {
		t.Fatalf("Append error = %v", err)
	}
	if err := w.Append(ts.Add(time.Second), -1200.25); err != nil {
		t.Fatalf("Append error = %v", err)
	}

	w.batchMu.Lock()
	defer w.batchMu.Unlock()

	if len(w.batch) != 2 {
		t.Fatalf("batch len = %d, want 2", len(w.batch))
	}
	first := w.batch[0]
	if first.TS != ts.UnixMicro() {
		t.Errorf("TS = %d, want %d", first.TS, ts.UnixMicro())
	}
	if first.Underlying != "SPX" {
		t.Errorf("Underlying = %q, want SPX", first.Underlying)
	}
	if first.TotalGamma != -1234.5 {
		t.Errorf("TotalGamma = %v, want -1234.5", first.TotalGamma)
	}
	if w.metrics.Appends != 2 {
		t.Errorf("Appends = %d, want 2", w.metrics.Appends)
	}
}

// Flush without a pool must surface as a counted error, not a panic: the
// engine treats the sink as fallible and keeps running.
func TestFlush_NoDatabaseCountsError(t *testing.T) {
	w := NewSnapshotWriter(Config{Underlying: "SPX", BatchSize: 1}, nil, nil)

	// BatchSize 1 forces a flush inside Append.
	if err := w.Append(time.Now(), -1.0); err != nil {
		t.Fatalf("Append error = %v", err)
	}

	stats := w.Stats()
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if stats.Inserts != 0 {
		t.Errorf("Inserts = %d, want 0", stats.Inserts)
	}
}

func TestSnapshotWriter_Lifecycle(t *testing.T) {
	cfg := Config{
		Underlying:    "SPX",
		BatchSize:     10,
		FlushInterval: 50 * time.Millisecond,
	}
	w := NewSnapshotWriter(cfg, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestDefaults(t *testing.T) {
	w := NewSnapshotWriter(Config{}, nil, nil)
	if w.cfg.BatchSize != DefaultConfig().BatchSize {
		t.Errorf("BatchSize = %d, want default %d", w.cfg.BatchSize, DefaultConfig().BatchSize)
	}
	if w.cfg.FlushInterval != DefaultConfig().FlushInterval {
		t.Errorf("FlushInterval = %v, want default %v", w.cfg.FlushInterval, DefaultConfig().FlushInterval)
	}
}
