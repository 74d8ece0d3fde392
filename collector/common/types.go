package common

import (
	"context"
	"errors"
	"time"

	"github.com/mizuno-sec/vigil/internal/model"
)

// ErrUnavailable reports that the OS facility backing a collector cannot be
// accessed (no /proc, inotify init failure, permission denied). It is
// recoverable: Supervise logs it and retries with backoff.
var ErrUnavailable = errors.New("collector unavailable")

// Observation is one raw, kind-specific record emitted by a collector
// before normalization. PID and StartTicks together identify the underlying
// process for deduplication across collectors; both are zero for file
// observations.
type Observation struct {
	Kind       model.Kind
	Time       time.Time
	PID        int
	PPID       int
	StartTicks uint64
	Actor      string
	Subject    string
	Meta       map[string]string
}

// Collector produces an infinite sequence of raw observations. Run blocks
// until ctx is cancelled (nil return) or the underlying facility fails
// (ErrUnavailable, possibly wrapped). Collectors share no mutable state and
// communicate only through the out channel.
type Collector interface {
	Name() string
	Run(ctx context.Context, out chan<- Observation) error
}
