package queue

import (
	"sync"
	"testing"
	"time"
)

func TestBuffer_SendReceiveOrder(t *testing.T) {
	buf := New[int](10)

	for i := 0; i < 5; i++ {
		if !buf.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}
	if buf.Len() != 5 {
		t.Errorf("Len() = %d, want 5", buf.Len())
	}

	for i := 0; i < 5; i++ {
		val, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d (FIFO order)", val, i)
		}
	}
	if buf.Len() != 0 {
		t.Errorf("Len() = %d, want 0", buf.Len())
	}
}

func TestBuffer_GrowsUnderLoad(t *testing.T) {
	buf := New[int](4)

	for i := 0; i < 100; i++ {
		if !buf.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	stats := buf.Stats()
	if stats.Count != 100 {
		t.Errorf("Count = %d, want 100", stats.Count)
	}
	if stats.Resizes < 3 {
		t.Errorf("Resizes = %d, want at least 3", stats.Resizes)
	}

	// Order survives growth, including wrap-around copies.
	for i := 0; i < 100; i++ {
		val, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}
}

func TestBuffer_BlockingReceive(t *testing.T) {
	buf := New[int](10)
	received := make(chan int, 1)

	go func() {
		if val, ok := buf.Receive(); ok {
			received <- val
		}
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Send(42)

	select {
	case val := <-received:
		if val != 42 {
			t.Errorf("received %d, want 42", val)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not wake after Send")
	}
}

func TestBuffer_CloseDrainsThenStops(t *testing.T) {
	buf := New[int](10)
	buf.Send(1)
	buf.Send(2)
	buf.Close()

	if buf.Send(3) {
		t.Error("Send succeeded after Close")
	}

	for want := 1; want <= 2; want++ {
		val, ok := buf.Receive()
		if !ok || val != want {
			t.Errorf("Receive() = %d, %v, want %d, true", val, ok, want)
		}
	}

	if _, ok := buf.Receive(); ok {
		t.Error("Receive succeeded on closed empty buffer")
	}
	if _, ok := buf.TryReceive(); ok {
		t.Error("TryReceive succeeded on closed empty buffer")
	}
}

func TestBuffer_TryReceiveEmpty(t *testing.T) {
	buf := New[int](10)
	if _, ok := buf.TryReceive(); ok {
		t.Error("TryReceive on empty buffer returned an item")
	}
}

func TestBuffer_ConcurrentProducerConsumer(t *testing.T) {
	buf := New[int](8)
	const n = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			buf.Send(i)
		}
		buf.Close()
	}()

	// Single consumer, as in the aggregation loop: order must hold.
	prev := -1
	for {
		val, ok := buf.Receive()
		if !ok {
			break
		}
		if val != prev+1 {
			t.Fatalf("received %d after %d, want strict FIFO", val, prev)
		}
		prev = val
	}
	if prev != n-1 {
		t.Errorf("last received = %d, want %d", prev, n-1)
	}

	wg.Wait()

	stats := buf.Stats()
	if stats.TotalIn != n || stats.TotalOut != n {
		t.Errorf("TotalIn/TotalOut = %d/%d, want %d/%d", stats.TotalIn, stats.TotalOut, n, n)
	}
}
