//go:build linux

// Package command captures the full command line of newly started
// processes. It polls /proc independently of the process collector; the
// normalizer merges the two views of one process start.
package command

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mizuno-sec/vigil/collector/common"
	"github.com/mizuno-sec/vigil/collector/procscan"
	"github.com/mizuno-sec/vigil/internal/model"
)

// SubjectUnavailable is emitted when a command line cannot be read
// (insufficient privilege, zombie, kernel thread). The observation is still
// emitted: dropping it would leave a detection gap.
const SubjectUnavailable = "<unavailable>"

const DefaultInterval = 1 * time.Second

type Config struct {
	Interval time.Duration
}

type Collector struct {
	cfg   Config
	users *procscan.UserCache
	seen  map[int]uint64 // pid -> startticks
}

func New(cfg Config) *Collector {
	if cfg.Interval < 100*time.Millisecond {
		cfg.Interval = 100 * time.Millisecond
	}
	return &Collector{cfg: cfg, users: procscan.NewUserCache(), seen: make(map[int]uint64)}
}

func (c *Collector) Name() string { return "command" }

func (c *Collector) Run(ctx context.Context, out chan<- common.Observation) error {
	if err := c.scan(ctx, nil); err != nil {
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

// scan walks /proc; a nil out channel primes the baseline without emitting.
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
		if prev, ok := c.seen[pid]; ok && prev == st.StartTicks {
			continue
		}
		c.seen[pid] = st.StartTicks
		if out == nil {
			continue
		}

		subject := SubjectUnavailable
		if cl, err := procscan.Cmdline(pid); err == nil && cl != "" {
			subject = cl
		}
		actor := model.ActorUnknown
		if uid, err := procscan.OwnerUID(pid); err == nil {
			actor = c.users.Name(uid)
		}

		obs := common.Observation{
			Kind:       model.KindCommandExec,
			Time:       now,
			PID:        pid,
			PPID:       st.PPID,
			StartTicks: st.StartTicks,
			Actor:      actor,
			Subject:    subject,
			Meta: map[string]string{
				"pid":  strconv.Itoa(pid),
				"ppid": strconv.Itoa(st.PPID),
				"comm": st.Comm,
			},
		}
		select {
		case out <- obs:
		case <-ctx.Done():
			return nil
		}
	}

	for pid := range c.seen {
		if _, ok := alive[pid]; !ok {
			delete(c.seen, pid)
		}
	}
	return nil
}
