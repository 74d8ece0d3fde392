//go:build linux

// Package process polls /proc for process creation and termination.
package process

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mizuno-sec/vigil/collector/common"
	"github.com/mizuno-sec/vigil/collector/procscan"
	"github.com/mizuno-sec/vigil/internal/model"
)

// MinInterval is the floor for the polling interval. Below this the scan
// itself starts to dominate a core; raising the interval instead trades CPU
// for detection latency and a higher chance of missing short-lived
// processes entirely.
const MinInterval = 100 * time.Millisecond

const DefaultInterval = 1 * time.Second

type Config struct {
	Interval time.Duration
}

type known struct {
	startTicks uint64
	subject    string
	actor      string
}

// Collector emits process_start for every (pid, starttime) pair not seen on
// a previous scan, and process_end when a known pair disappears. The first
// scan only primes the baseline: processes already running when the
// collector starts are not reported.
type Collector struct {
	cfg   Config
	users *procscan.UserCache
	seen  map[int]known
}

func New(cfg Config) *Collector {
	if cfg.Interval < MinInterval {
		cfg.Interval = MinInterval
	}
	return &Collector{cfg: cfg, users: procscan.NewUserCache(), seen: make(map[int]known)}
}

func (c *Collector) Name() string { return "process" }

func (c *Collector) Run(ctx context.Context, out chan<- common.Observation) error {
	if err := c.prime(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.scan(ctx, out); err != nil {
				return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
			}
		}
	}
}

func (c *Collector) prime() error {
	pids, err := procscan.ListPIDs()
	if err != nil {
		return err
	}
	for _, pid := range pids {
		st, err := procscan.ReadStat(pid)
		if err != nil {
			continue // raced with exit
		}
		c.seen[pid] = known{startTicks: st.StartTicks, subject: subjectFor(pid, st), actor: c.actorFor(pid)}
	}
	return nil
}

func (c *Collector) scan(ctx context.Context, out chan<- common.Observation) error {
	pids, err := procscan.ListPIDs()
	if err != nil {
		return err
	}

	now := time.Now()
	alive := make(map[int]struct{}, len(pids))
	for _, pid := range pids {
		st, err := procscan.ReadStat(pid)
		if err != nil {
			continue
		}
		alive[pid] = struct{}{}

		prev, ok := c.seen[pid]
		if ok && prev.startTicks == st.StartTicks {
			continue
		}
		// PID reuse shows up as a changed start time: report the old
		// incarnation as ended before the new start.
		if ok {
			emit(ctx, out, c.endObservation(pid, prev, now))
		}

		k := known{startTicks: st.StartTicks, subject: subjectFor(pid, st), actor: c.actorFor(pid)}
		c.seen[pid] = k
		emit(ctx, out, common.Observation{
			Kind:       model.KindProcessStart,
			Time:       now,
			PID:        pid,
			PPID:       st.PPID,
			StartTicks: st.StartTicks,
			Actor:      k.actor,
			Subject:    k.subject,
			Meta: map[string]string{
				"pid":  strconv.Itoa(pid),
				"ppid": strconv.Itoa(st.PPID),
				"comm": st.Comm,
			},
		})
	}

	for pid, prev := range c.seen {
		if _, ok := alive[pid]; ok {
			continue
		}
		delete(c.seen, pid)
		emit(ctx, out, c.endObservation(pid, prev, now))
	}
	return nil
}

func (c *Collector) endObservation(pid int, prev known, now time.Time) common.Observation {
	return common.Observation{
		Kind:       model.KindProcessEnd,
		Time:       now,
		PID:        pid,
		StartTicks: prev.startTicks,
		Actor:      prev.actor,
		Subject:    prev.subject,
		Meta:       map[string]string{"pid": strconv.Itoa(pid)},
	}
}

func (c *Collector) actorFor(pid int) string {
	uid, err := procscan.OwnerUID(pid)
	if err != nil {
		return model.ActorUnknown
	}
	return c.users.Name(uid)
}

// subjectFor prefers the resolved executable path; /proc/<pid>/exe needs
// ptrace access, so fall back to the comm name.
func subjectFor(pid int, st procscan.Stat) string {
	if exe, err := procscan.Exe(pid); err == nil && exe != "" {
		return exe
	}
	return st.Comm
}

func emit(ctx context.Context, out chan<- common.Observation, obs common.Observation) {
	select {
	case out <- obs:
	case <-ctx.Done():
	}
}
