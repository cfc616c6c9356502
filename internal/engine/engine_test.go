package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/mwheeler/gexstream/internal/book"
	"github.com/mwheeler/gexstream/internal/model"
	"github.com/mwheeler/gexstream/internal/queue"
)

type fakeQuotes map[string]model.Quote

func (f fakeQuotes) Lookup(symbol string) (model.Quote, bool) {
	q, ok := f[symbol]
	return q, ok
}

type fakeSpot float64

func (f fakeSpot) Get() (float64, bool) {
	return float64(f), f > 0
}

// Trade timestamps: 1748613600 is 2025-05-30 14:00 UTC (10:00 ET), six
// hours before the 0DTE close; 1748642400 is 22:00 UTC, past expiry.
const sym = "O:SPXW250530C05900000"

func newTestEngine(quotes fakeQuotes, spot fakeSpot, emit SnapshotFunc) *Engine {
	cfg := DefaultConfig()
	cfg.RecvTimeout = 5 * time.Millisecond
	cfg.SnapshotInterval = 20 * time.Millisecond
	return New(cfg, queue.New[RawMessage](16), quotes, spot, emit, nil)
}

func TestProcess_EndToEndBuyThenSell(t *testing.T) {
	quotes := fakeQuotes{sym: {Bid: 3.00, Ask: 3.20}}
	e := newTestEngine(quotes, 5900, nil)

	// Customer lifts the offer for 10.
	e.process(rawMsg(`{"sym":"` + sym + `","p":3.20,"s":10,"t":1748613600}`))

	key := book.Key{Strike: 5900, Call: true}
	row, ok := e.Book().Row(key)
	if !ok {
		t.Fatal("no ledger row after buy")
	}
	if row.OpenLong != 10 {
		t.Errorf("OpenLong = %d, want 10", row.OpenLong)
	}
	if row.NetGamma >= 0 {
		t.Errorf("NetGamma = %v, want negative (dealer short gamma)", row.NetGamma)
	}
	afterBuy := row.NetGamma

	// Customer hits the bid for 4 at the same strike and instant: same
	// gamma per contract, so net gamma recovers exactly 4/10 of the move.
	e.process(rawMsg(`{"sym":"` + sym + `","p":3.00,"s":4,"t":1748613600}`))

	row, _ = e.Book().Row(key)
	if row.OpenShort != 4 {
		t.Errorf("OpenShort = %d, want 4", row.OpenShort)
	}
	want := afterBuy * 6 / 10
	if math.Abs(row.NetGamma-want) > math.Abs(want)*1e-9 {
		t.Errorf("NetGamma = %v, want %v", row.NetGamma, want)
	}

	stats := e.Stats()
	if stats.Processed != 2 {
		t.Errorf("Processed = %d, want 2", stats.Processed)
	}
}

func TestProcess_DropReasons(t *testing.T) {
	quotes := fakeQuotes{sym: {Bid: 3.00, Ask: 3.20}}

	tests := []struct {
		name    string
		data    string
		spot    fakeSpot
		counter func(Stats) int64
	}{
		{
			name:    "malformed message",
			data:    `{"p":3.20}`,
			spot:    5900,
			counter: func(s Stats) int64 { return s.DroppedDecode },
		},
		{
			name:    "garbled symbol",
			data:    `{"sym":"O:GARBAGE","p":3.20,"s":10,"t":1748613600}`,
			spot:    5900,
			counter: func(s Stats) int64 { return s.DroppedSymbol },
		},
		{
			name:    "no NBBO",
			data:    `{"sym":"O:SPXW250530C05925000","p":3.20,"s":10,"t":1748613600}`,
			spot:    5900,
			counter: func(s Stats) int64 { return s.DroppedNoQuote },
		},
		{
			name:    "mid-market print",
			data:    `{"sym":"` + sym + `","p":3.10,"s":10,"t":1748613600}`,
			spot:    5900,
			counter: func(s Stats) int64 { return s.DroppedAmbiguous },
		},
		{
			name:    "expired option",
			data:    `{"sym":"` + sym + `","p":3.20,"s":10,"t":1748642400}`,
			spot:    5900,
			counter: func(s Stats) int64 { return s.DroppedExpired },
		},
		{
			name:    "no spot yet",
			data:    `{"sym":"` + sym + `","p":3.20,"s":10,"t":1748613600}`,
			spot:    0,
			counter: func(s Stats) int64 { return s.DroppedNoSpot },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(quotes, tt.spot, nil)
			e.process(rawMsg(tt.data))

			stats := e.Stats()
			if got := tt.counter(stats); got != 1 {
				t.Errorf("drop counter = %d, want 1", got)
			}
			if stats.Processed != 0 {
				t.Errorf("Processed = %d, want 0", stats.Processed)
			}
			if e.Book().Size() != 0 {
				t.Errorf("ledger mutated on dropped trade: %d rows", e.Book().Size())
			}
		})
	}
}

func TestEmitSnapshot_SinkFailuresDoNotStopLoop(t *testing.T) {
	calls := 0
	e := newTestEngine(fakeQuotes{}, 5900, func(ts time.Time, total float64) error {
		calls++
		if calls == 1 {
			return errors.New("sink down")
		}
		panic("sink exploded")
	})

	e.emitSnapshot(time.Now()) // error
	e.emitSnapshot(time.Now()) // panic, recovered

	stats := e.Stats()
	if stats.SnapshotErrors != 2 {
		t.Errorf("SnapshotErrors = %d, want 2", stats.SnapshotErrors)
	}
	if stats.Snapshots != 0 {
		t.Errorf("Snapshots = %d, want 0", stats.Snapshots)
	}
}

func TestRun_ProcessesAndEmitsUntilCancelled(t *testing.T) {
	quotes := fakeQuotes{sym: {Bid: 3.00, Ask: 3.20}}

	var mu sync.Mutex
	var emitted []model.GammaSnapshot
	emit := func(ts time.Time, total float64) error {
		mu.Lock()
		emitted = append(emitted, model.GammaSnapshot{TS: ts, TotalGamma: total})
		mu.Unlock()
		return nil
	}

	e := newTestEngine(quotes, 5900, emit)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	e.input.Send(rawMsg(`{"sym":"` + sym + `","p":3.20,"s":10,"t":1748613600}`))
	e.input.Send(rawMsg(`{"sym":"` + sym + `","p":3.00,"s":4,"t":1748613600}`))

	// Let a few snapshot intervals elapse.
	time.Sleep(120 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after cancellation")
	}

	stats := e.Stats()
	if stats.Processed != 2 {
		t.Errorf("Processed = %d, want 2", stats.Processed)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(emitted) == 0 {
		t.Fatal("no snapshots emitted")
	}
	last := emitted[len(emitted)-1]
	if got := e.Book().TotalGamma(); math.Abs(last.TotalGamma-got) > 1e-12 {
		t.Errorf("last snapshot total = %v, want ledger total %v", last.TotalGamma, got)
	}
	if last.TotalGamma >= 0 {
		t.Errorf("TotalGamma = %v, want negative after net customer buying", last.TotalGamma)
	}
}

func TestRun_DataErrorsNeverExitLoop(t *testing.T) {
	e := newTestEngine(fakeQuotes{}, 5900, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// A stream of garbage must not terminate the loop.
	for i := 0; i < 50; i++ {
		e.input.Send(rawMsg(`{"broken":`))
	}

	select {
	case err := <-done:
		t.Fatalf("Run exited on data errors: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	<-done

	if got := e.Stats().DroppedDecode; got != 50 {
		t.Errorf("DroppedDecode = %d, want 50", got)
	}
}
