package common

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type flakyCollector struct {
	failures int32 // remaining runs that fail immediately
	runs     atomic.Int32
}

func (f *flakyCollector) Name() string { return "flaky" }

func (f *flakyCollector) Run(ctx context.Context, out chan<- Observation) error {
	n := f.runs.Add(1)
	if n <= atomic.LoadInt32(&f.failures) {
		return errors.New("boom")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestSupervise_RestartsAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &flakyCollector{failures: 1}
	restarts := make(chan string, 4)
	done := make(chan struct{})
	go func() {
		Supervise(ctx, c, make(chan Observation, 1), func(name string) { restarts <- name })
		close(done)
	}()

	select {
	case name := <-restarts:
		if name != "flaky" {
			t.Errorf("restart for %q, want flaky", name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("collector never restarted")
	}

	// Wait for the restarted run to begin; it then blocks on ctx and
	// cancellation must stop supervision.
	deadline := time.Now().Add(3 * time.Second)
	for c.runs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("second run never started")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Supervise did not return after cancel")
	}
}

func TestSupervise_StopsDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &flakyCollector{failures: 1 << 30} // always failing
	done := make(chan struct{})
	go func() {
		Supervise(ctx, c, make(chan Observation, 1), nil)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond) // land inside the first backoff wait
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Supervise did not return after cancel during backoff")
	}
}
