package server

import (
	"context"
	"testing"
)

func TestEventQueueKeepsOrderWithoutBlocking(t *testing.T) {
	q := newEventQueue()
	var got []int
	// Far more than any channel buffer would hold, pushed before the
	// runner starts.
	for i := 0; i < 1000; i++ {
		i := i
		q.push(func() { got = append(got, i) })
	}
	if n := q.pending(); n != 1000 {
		t.Fatalf("pending = %d, want 1000", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	q.push(func() { cancel(); close(done) })
	go q.run(ctx)
	<-done

	if len(got) != 1000 {
		t.Fatalf("ran %d handlers, want 1000", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("handler %d ran at position %d", v, i)
		}
	}
}

func TestEventQueueStopsOnCancel(t *testing.T) {
	q := newEventQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	q.push(func() { ran = true })
	q.run(ctx)
	if ran {
		t.Error("handler ran after cancel")
	}
}
