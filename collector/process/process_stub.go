//go:build !linux

package process

import (
	"context"
	"time"

	"github.com/mizuno-sec/vigil/collector/common"
)

const (
	MinInterval     = 100 * time.Millisecond
	DefaultInterval = 1 * time.Second
)

type Config struct {
	Interval time.Duration
}

type Collector struct{}

func New(Config) *Collector { return &Collector{} }

func (c *Collector) Name() string { return "process" }

func (c *Collector) Run(context.Context, chan<- common.Observation) error {
	return common.ErrUnavailable
}
