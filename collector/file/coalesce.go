package file

import (
	"time"

	"github.com/mizuno-sec/vigil/internal/model"
)

const DefaultCoalesceWindow = 2 * time.Second

// Coalescer collapses bursts of modify events on one path into a single
// observation: editors routinely issue several writes per save. Only
// file_modify participates; create and delete always pass and clear the
// path's window so a modify after either starts a fresh burst. Different
// paths never interact.
type Coalescer struct {
	window  time.Duration
	lastMod map[string]time.Time
}

func NewCoalescer(window time.Duration) *Coalescer {
	if window <= 0 {
		window = DefaultCoalesceWindow
	}
	return &Coalescer{window: window, lastMod: make(map[string]time.Time)}
}

// Admit reports whether an observation for (kind, path) at time t should be
// emitted. The first modify of a burst is emitted; followers inside the
// window are swallowed.
func (c *Coalescer) Admit(kind model.Kind, path string, t time.Time) bool {
	if kind != model.KindFileModify {
		delete(c.lastMod, path)
		return true
	}
	if last, ok := c.lastMod[path]; ok && t.Sub(last) < c.window {
		return false
	}
	c.lastMod[path] = t
	return true
}
