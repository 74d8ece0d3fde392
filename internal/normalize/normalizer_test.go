package normalize

import (
	"context"
	"testing"
	"time"

	"github.com/mizuno-sec/vigil/collector/common"
	"github.com/mizuno-sec/vigil/internal/model"
)

func collectEvents(t *testing.T, out <-chan model.Event, n int, timeout time.Duration) []model.Event {
	t.Helper()
	evs := make([]model.Event, 0, n)
	deadline := time.After(timeout)
	for len(evs) < n {
		select {
		case ev, ok := <-out:
			if !ok {
				return evs
			}
			evs = append(evs, ev)
		case <-deadline:
			t.Fatalf("timed out after %d/%d events", len(evs), n)
		}
	}
	return evs
}

func TestNormalizer_IDsUniqueAndIncreasing(t *testing.T) {
	in := make(chan common.Observation, 16)
	n := New(Config{StartID: 1, DedupWindow: 50 * time.Millisecond}, in)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	now := time.Now()
	for i := 0; i < 10; i++ {
		in <- common.Observation{Kind: model.KindFileModify, Time: now, Subject: "/tmp/a", Actor: "u"}
	}

	evs := collectEvents(t, n.Out(), 10, 2*time.Second)
	for i, ev := range evs {
		if ev.ID != int64(i+1) {
			t.Fatalf("event %d: id=%d, want %d", i, ev.ID, i+1)
		}
	}
}

func TestNormalizer_StartIDSeedsSequence(t *testing.T) {
	in := make(chan common.Observation, 1)
	n := New(Config{StartID: 101, DedupWindow: 50 * time.Millisecond}, in)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	in <- common.Observation{Kind: model.KindFileCreate, Time: time.Now(), Subject: "/tmp/x"}
	evs := collectEvents(t, n.Out(), 1, 2*time.Second)
	if evs[0].ID != 101 {
		t.Fatalf("id=%d, want 101", evs[0].ID)
	}
}

func TestNormalizer_MergesProcessAndCommandViews(t *testing.T) {
	in := make(chan common.Observation, 4)
	n := New(Config{StartID: 1, DedupWindow: 200 * time.Millisecond}, in)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	now := time.Now()
	in <- common.Observation{
		Kind: model.KindProcessStart, Time: now, PID: 42, PPID: 1, StartTicks: 9999,
		Actor: "root", Subject: "/usr/bin/curl",
		Meta: map[string]string{"pid": "42", "comm": "curl"},
	}
	in <- common.Observation{
		Kind: model.KindCommandExec, Time: now, PID: 42, PPID: 1, StartTicks: 9999,
		Actor: model.ActorUnknown, Subject: "curl -s http://example.com",
		Meta: map[string]string{"pid": "42"},
	}

	evs := collectEvents(t, n.Out(), 1, 2*time.Second)
	ev := evs[0]
	if ev.Kind != model.KindCommandExec {
		t.Fatalf("kind=%s, want command_exec", ev.Kind)
	}
	if ev.Subject != "curl -s http://example.com" {
		t.Fatalf("subject=%q", ev.Subject)
	}
	if ev.Meta["exe"] != "/usr/bin/curl" {
		t.Fatalf("meta.exe=%q, want process view's executable", ev.Meta["exe"])
	}
	if ev.Actor != "root" {
		t.Fatalf("actor=%q, want process view's actor", ev.Actor)
	}

	// Nothing else should come out: two raw observations, one event.
	select {
	case extra := <-n.Out():
		t.Fatalf("unexpected second event: %+v", extra)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestNormalizer_UnmatchedFlushesStandalone(t *testing.T) {
	in := make(chan common.Observation, 1)
	n := New(Config{StartID: 1, DedupWindow: 80 * time.Millisecond}, in)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	in <- common.Observation{
		Kind: model.KindProcessStart, Time: time.Now(), PID: 7, StartTicks: 123,
		Actor: "u", Subject: "/bin/sleep",
	}

	evs := collectEvents(t, n.Out(), 1, 2*time.Second)
	if evs[0].Kind != model.KindProcessStart {
		t.Fatalf("kind=%s, want standalone process_start", evs[0].Kind)
	}
}

func TestNormalizer_DifferentStartTicksNotMerged(t *testing.T) {
	in := make(chan common.Observation, 2)
	n := New(Config{StartID: 1, DedupWindow: 60 * time.Millisecond}, in)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	now := time.Now()
	in <- common.Observation{Kind: model.KindProcessStart, Time: now, PID: 5, StartTicks: 100, Subject: "/bin/a"}
	in <- common.Observation{Kind: model.KindCommandExec, Time: now, PID: 5, StartTicks: 200, Subject: "a --flag"}

	evs := collectEvents(t, n.Out(), 2, 2*time.Second)
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
}

func TestNormalizer_FlushesPendingOnCancel(t *testing.T) {
	in := make(chan common.Observation, 1)
	n := New(Config{StartID: 1, DedupWindow: 10 * time.Second}, in)
	ctx, cancel := context.WithCancel(context.Background())
	go n.Run(ctx)

	in <- common.Observation{Kind: model.KindProcessStart, Time: time.Now(), PID: 9, StartTicks: 77, Subject: "/bin/b"}
	time.Sleep(50 * time.Millisecond)
	cancel()

	evs := collectEvents(t, n.Out(), 1, 2*time.Second)
	if evs[0].Subject != "/bin/b" {
		t.Fatalf("flushed subject=%q", evs[0].Subject)
	}
}
