//go:build !linux

package command

import (
	"context"
	"time"

	"github.com/mizuno-sec/vigil/collector/common"
)

const (
	SubjectUnavailable = "<unavailable>"
	DefaultInterval    = 1 * time.Second
)

type Config struct {
	Interval time.Duration
}

type Collector struct{}

func New(Config) *Collector { return &Collector{} }

func (c *Collector) Name() string { return "command" }

func (c *Collector) Run(context.Context, chan<- common.Observation) error {
	return common.ErrUnavailable
}
