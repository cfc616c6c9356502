package feed

import (
	"testing"
	"time"

	"github.com/mwheeler/gexstream/internal/engine"
	"github.com/mwheeler/gexstream/internal/nbbo"
	"github.com/mwheeler/gexstream/internal/queue"
)

func newTestClient() (*Client, *queue.Buffer[engine.RawMessage], *nbbo.Store, *nbbo.SpotTracker) {
	trades := queue.New[engine.RawMessage](16)
	quotes := nbbo.NewStore()
	spot := nbbo.NewSpotTracker()
	c := New(DefaultConfig(), trades, quotes, spot, nil)
	return c, trades, quotes, spot
}

func TestDispatch_RoutesBatchedEvents(t *testing.T) {
	c, trades, quotes, spot := newTestClient()

	frame := `[
		{"ev":"Q","sym":"O:SPXW250530C05900000","bp":3.00,"ap":3.20,"t":1748613600000000},
		{"ev":"V","sym":"I:SPX","val":5901.25,"t":1748613600000000},
		{"ev":"T","sym":"O:SPXW250530C05900000","p":3.20,"s":10,"t":1748613600},
		{"ev":"status","message":"authenticated"}
	]`
	c.dispatch([]byte(frame), time.Now())

	if trades.Len() != 1 {
		t.Errorf("trade queue len = %d, want 1", trades.Len())
	}
	raw, _ := trades.TryReceive()
	if len(raw.Data) == 0 || raw.ReceivedAt.IsZero() {
		t.Errorf("trade message not stamped: %+v", raw)
	}

	q, ok := quotes.Lookup("O:SPXW250530C05900000")
	if !ok {
		t.Fatal("quote not published")
	}
	if q.Bid != 3.00 || q.Ask != 3.20 {
		t.Errorf("quote = %+v, want 3.00/3.20", q)
	}

	spotVal, ok := spot.Get()
	if !ok || spotVal != 5901.25 {
		t.Errorf("spot = %v, %v, want 5901.25, true", spotVal, ok)
	}

	stats := c.Stats()
	if stats.Trades != 1 || stats.Quotes != 1 || stats.IndexVals != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDispatch_SingleObjectFrame(t *testing.T) {
	c, trades, _, _ := newTestClient()

	c.dispatch([]byte(`{"ev":"T","sym":"X","p":1.0,"s":1,"t":1748613600}`), time.Now())

	if trades.Len() != 1 {
		t.Errorf("trade queue len = %d, want 1", trades.Len())
	}
}

func TestDispatch_OneSidedQuoteStillPublished(t *testing.T) {
	c, _, quotes, _ := newTestClient()

	c.dispatch([]byte(`[{"ev":"Q","sym":"X","ap":3.20,"t":1}]`), time.Now())

	q, ok := quotes.Lookup("X")
	if !ok {
		t.Fatal("one-sided quote not published")
	}
	if q.Bid != 0 || q.Ask != 3.20 {
		t.Errorf("quote = %+v, want bid 0, ask 3.20", q)
	}
	if q.Valid() {
		t.Error("one-sided quote reported valid")
	}
}

func TestDispatch_MalformedEventsCountedNotFatal(t *testing.T) {
	c, trades, _, _ := newTestClient()

	c.dispatch([]byte(`[{"ev":"Q","sym":""}, {"ev":"V","val":-5}, 17]`), time.Now())
	c.dispatch([]byte(`not json at all`), time.Now())

	if trades.Len() != 0 {
		t.Errorf("trade queue len = %d, want 0", trades.Len())
	}
	stats := c.Stats()
	if stats.Malformed == 0 {
		t.Error("malformed events not counted")
	}
}
