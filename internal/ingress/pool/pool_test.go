package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	t.Parallel()
	// Submit never blocks, so the queue must hold every task even if no
	// worker has dequeued one yet.
	p := New(Config{Workers: 4, QueueSize: 64})
	defer p.Close()

	var n atomic.Int64
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			n.Add(1)
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	wg.Wait()

	if got := n.Load(); got != 50 {
		t.Fatalf("ran %d tasks, want 50", got)
	}
}

func TestPool_SubmitReturnsErrFullWhenSaturated(t *testing.T) {
	t.Parallel()
	p := New(Config{Workers: 1, QueueSize: 1})
	defer p.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	// Occupy the single worker, and wait until it has taken the task off
	// the queue.
	if err := p.Submit(func() { close(started); <-block }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started
	// Fill the queue.
	if err := p.Submit(func() {}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Any further submission must observe saturation.
	if err := p.Submit(func() {}); err != ErrFull {
		t.Fatalf("submit on saturated pool = %v, want ErrFull", err)
	}
	close(block)
}

func TestPool_CloseIsIdempotentAndRejectsFurtherSubmits(t *testing.T) {
	t.Parallel()
	p := New(Config{Workers: 2, QueueSize: 2})
	p.Close()
	p.Close() // must not panic or block twice

	if err := p.Submit(func() {}); err != ErrClosed {
		t.Fatalf("submit after close = %v, want ErrClosed", err)
	}
}

func TestPool_ClampsZeroConfig(t *testing.T) {
	t.Parallel()
	p := New(Config{})
	defer p.Close()

	done := make(chan struct{})
	if err := p.Submit(func() { close(done) }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran on zero-value config pool")
	}
}
