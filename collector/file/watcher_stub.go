//go:build !linux

package file

import (
	"context"
	"time"

	"github.com/mizuno-sec/vigil/collector/common"
)

type Config struct {
	WatchPaths     []string
	CoalesceWindow time.Duration
	IgnoreExts     []string
	IgnoreKeywords []string
}

type Watcher struct{}

func New(Config) *Watcher { return &Watcher{} }

func (w *Watcher) Name() string { return "file" }

func (w *Watcher) Run(context.Context, chan<- common.Observation) error {
	return common.ErrUnavailable
}
