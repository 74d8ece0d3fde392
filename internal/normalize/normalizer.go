// Package normalize merges the raw collector streams into one ordered
// Event stream: it assigns ids and canonical timestamps and folds the
// process and command collectors' views of a single process start into one
// Event.
package normalize

import (
	"context"
	"fmt"
	"time"

	"github.com/mizuno-sec/vigil/collector/common"
	"github.com/mizuno-sec/vigil/internal/model"
)

// DefaultDedupWindow bounds how long an observation waits for its
// counterpart from the other collector. The window also bounds buffering:
// anything unmatched when it lapses is normalized standalone.
const DefaultDedupWindow = 500 * time.Millisecond

type Config struct {
	// StartID is the first id to assign; the engine seeds it from the
	// store's high-water mark so ids stay monotonic across restarts.
	StartID     int64
	DedupWindow time.Duration
}

type pending struct {
	obs      common.Observation
	deadline time.Time
}

// Normalizer is logically single-threaded: one goroutine drains the input
// channel and performs all merging and id assignment, which is what makes
// the id-ordering guarantee trivial to keep.
type Normalizer struct {
	cfg Config
	in  <-chan common.Observation
	out chan model.Event

	seq     int64
	waiting map[string]pending
}

func New(cfg Config, in <-chan common.Observation) *Normalizer {
	if cfg.StartID <= 0 {
		cfg.StartID = 1
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	return &Normalizer{
		cfg:     cfg,
		in:      in,
		out:     make(chan model.Event, 1024),
		seq:     cfg.StartID - 1,
		waiting: make(map[string]pending),
	}
}

// Out carries Events in strictly increasing id order. It is closed when Run
// returns.
func (n *Normalizer) Out() <-chan model.Event { return n.out }

func (n *Normalizer) Run(ctx context.Context) {
	defer close(n.out)

	tick := n.cfg.DedupWindow / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Flush anything still waiting so shutdown loses no observations.
			for key, p := range n.waiting {
				delete(n.waiting, key)
				n.emit(n.toEvent(p.obs))
			}
			return
		case obs, ok := <-n.in:
			if !ok {
				for key, p := range n.waiting {
					delete(n.waiting, key)
					n.emit(n.toEvent(p.obs))
				}
				return
			}
			n.handle(obs)
		case now := <-ticker.C:
			n.flushExpired(now)
		}
	}
}

func (n *Normalizer) handle(obs common.Observation) {
	if !mergeable(obs) {
		n.emit(n.toEvent(obs))
		return
	}

	key := dedupKey(obs)
	if p, ok := n.waiting[key]; ok && p.obs.Kind != obs.Kind {
		delete(n.waiting, key)
		n.emit(n.merge(p.obs, obs))
		return
	}
	// Same-kind duplicate for the key keeps the earlier observation's slot
	// and deadline.
	if _, ok := n.waiting[key]; !ok {
		n.waiting[key] = pending{obs: obs, deadline: obs.Time.Add(n.cfg.DedupWindow)}
	}
}

func (n *Normalizer) flushExpired(now time.Time) {
	for key, p := range n.waiting {
		if now.After(p.deadline) {
			delete(n.waiting, key)
			n.emit(n.toEvent(p.obs))
		}
	}
}

// mergeable: only the two process-start views participate in dedup, and
// only when they carry enough identity to match on.
func mergeable(obs common.Observation) bool {
	if obs.PID <= 0 || obs.StartTicks == 0 {
		return false
	}
	return obs.Kind == model.KindProcessStart || obs.Kind == model.KindCommandExec
}

func dedupKey(obs common.Observation) string {
	return fmt.Sprintf("%d:%d", obs.PID, obs.StartTicks)
}

// merge folds a process_start and a command_exec observation for the same
// process into one command_exec Event: the command line is the richer
// subject, the process view contributes the executable path.
func (n *Normalizer) merge(a, b common.Observation) model.Event {
	proc, cmd := a, b
	if proc.Kind != model.KindProcessStart {
		proc, cmd = b, a
	}

	ev := n.toEvent(cmd)
	if ev.Meta == nil {
		ev.Meta = make(map[string]string)
	}
	for k, v := range proc.Meta {
		if _, ok := ev.Meta[k]; !ok {
			ev.Meta[k] = v
		}
	}
	if proc.Subject != "" {
		ev.Meta["exe"] = proc.Subject
	}
	if ev.Actor == model.ActorUnknown && proc.Actor != "" {
		ev.Actor = proc.Actor
	}
	return ev
}

func (n *Normalizer) toEvent(obs common.Observation) model.Event {
	ts := obs.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	actor := obs.Actor
	if actor == "" {
		actor = model.ActorUnknown
	}
	n.seq++
	return model.Event{
		ID:      n.seq,
		TS:      ts.UnixNano(),
		Kind:    obs.Kind,
		Actor:   actor,
		Subject: obs.Subject,
		Meta:    obs.Meta,
	}
}

func (n *Normalizer) emit(ev model.Event) {
	n.out <- ev
}
