// Package engine wires collectors, normalizer, rule engine, store, and
// live feed into the running monitor.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mizuno-sec/vigil/collector/command"
	"github.com/mizuno-sec/vigil/collector/common"
	"github.com/mizuno-sec/vigil/collector/file"
	"github.com/mizuno-sec/vigil/collector/process"
	"github.com/mizuno-sec/vigil/internal/config"
	"github.com/mizuno-sec/vigil/internal/detect"
	"github.com/mizuno-sec/vigil/internal/feed"
	"github.com/mizuno-sec/vigil/internal/metrics"
	"github.com/mizuno-sec/vigil/internal/model"
	"github.com/mizuno-sec/vigil/internal/normalize"
	"github.com/mizuno-sec/vigil/internal/storage"
)

// ErrStoreWrite marks the one fatal fault class: if an append cannot be
// made durable the engine stops rather than keep reporting false
// confidence downstream.
var ErrStoreWrite = errors.New("store write failure")

type Engine struct {
	cfg      config.Config
	store    *storage.Store
	detector *detect.Engine
	hub      *feed.Hub
	met      *metrics.Metrics

	started  time.Time
	alertSeq int64
}

func New(cfg config.Config, store *storage.Store, detector *detect.Engine, hub *feed.Hub, met *metrics.Metrics) *Engine {
	hub.SetDropHook(func() { met.FeedDrops.Inc() })
	return &Engine{
		cfg:      cfg,
		store:    store,
		detector: detector,
		hub:      hub,
		met:      met,
		started:  time.Now(),
		alertSeq: store.LastAlertID(),
	}
}

// Run blocks until ctx is cancelled or a store write fails. On shutdown
// the normalizer flushes its pending observations and every flushed event
// is appended before Run returns; the store itself is closed by the caller.
func (e *Engine) Run(ctx context.Context) error {
	obs := make(chan common.Observation, 8192)
	collectors := []common.Collector{
		process.New(process.Config{Interval: e.cfg.PollInterval.Std()}),
		command.New(command.Config{Interval: e.cfg.PollInterval.Std()}),
		file.New(file.Config{
			WatchPaths:     e.cfg.WatchPaths,
			CoalesceWindow: e.cfg.CoalesceWindow.Std(),
			IgnoreExts:     e.cfg.IgnoreExts,
			IgnoreKeywords: e.cfg.IgnoreKeywords,
		}),
	}
	for _, c := range collectors {
		c := c
		go common.Supervise(ctx, c, obs, func(name string) {
			e.met.CollectorRestarts.WithLabelValues(name).Inc()
		})
	}

	norm := normalize.New(normalize.Config{
		StartID:     e.store.LastEventID() + 1,
		DedupWindow: e.cfg.DedupWindow.Std(),
	}, obs)
	go norm.Run(ctx)

	go e.retentionLoop(ctx)

	for ev := range norm.Out() {
		if err := e.handleEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

// handleEvent processes one event end to end. Alert emission, including the
// throttle-state update inside Evaluate, completes before the next event is
// taken from the stream, which keeps throttle decisions consistent.
func (e *Engine) handleEvent(ev model.Event) error {
	e.met.Observations.WithLabelValues(string(ev.Kind)).Inc()

	if err := e.store.AppendEvent(ev); err != nil {
		e.met.StoreFailures.Inc()
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	e.met.Events.Inc()
	e.hub.PublishEvent(ev)

	findings, errs := e.detector.Evaluate(ev)
	for _, err := range errs {
		e.met.RuleErrors.Inc()
		log.Printf("rule evaluation: %v", err)
	}
	for _, f := range findings {
		e.alertSeq++
		a := model.Alert{
			ID:         e.alertSeq,
			EventID:    ev.ID,
			RuleID:     f.RuleID,
			Severity:   f.Severity,
			TS:         ev.TS,
			Suppressed: f.Suppressed,
			Message:    f.Message,
		}
		if err := e.store.AppendAlert(a); err != nil {
			e.met.StoreFailures.Inc()
			return fmt.Errorf("%w: %v", ErrStoreWrite, err)
		}
		e.met.Alerts.WithLabelValues(string(a.Severity)).Inc()
		e.hub.PublishAlert(a)
	}
	return nil
}

func (e *Engine) retentionLoop(ctx context.Context) {
	events := storage.Policy{MaxAge: e.cfg.RetentionEvents.MaxAge.Std(), MaxCount: e.cfg.RetentionEvents.MaxCount}
	alerts := storage.Policy{MaxAge: e.cfg.RetentionAlerts.MaxAge.Std(), MaxCount: e.cfg.RetentionAlerts.MaxCount}

	ticker := time.NewTicker(e.cfg.RetentionInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := e.store.ApplyRetention(now, events, alerts); err != nil {
				log.Printf("retention: %v", err)
			}
		}
	}
}

// Status summarizes the running engine for the query server.
type Status struct {
	StartedAt   int64 `json:"started_at"`
	UptimeNS    int64 `json:"uptime_ns"`
	Events      int64 `json:"events"`
	Alerts      int64 `json:"alerts"`
	Subscribers int   `json:"subscribers"`
	LastEventID int64 `json:"last_event_id"`
	LastAlertID int64 `json:"last_alert_id"`
}

func (e *Engine) Status() (Status, error) {
	events, alerts, err := e.store.Totals()
	if err != nil {
		return Status{}, err
	}
	return Status{
		StartedAt:   e.started.UnixNano(),
		UptimeNS:    int64(time.Since(e.started)),
		Events:      events,
		Alerts:      alerts,
		Subscribers: e.hub.Subscribers(),
		LastEventID: e.store.LastEventID(),
		LastAlertID: e.store.LastAlertID(),
	}, nil
}
