// Package server exposes the store's query interface and the live feed to
// dashboard clients over a unix socket. The pull queries are the primary
// contract; the push subscription is an optimization on top of them.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mizuno-sec/vigil/internal/engine"
	"github.com/mizuno-sec/vigil/internal/feed"
	"github.com/mizuno-sec/vigil/internal/ipc"
	"github.com/mizuno-sec/vigil/internal/model"
	"github.com/mizuno-sec/vigil/internal/storage"
)

type Server struct {
	sockPath string
	eng      *engine.Engine
	store    *storage.Store
	hub      *feed.Hub

	ln *net.UnixListener
}

func New(sockPath string, eng *engine.Engine, store *storage.Store, hub *feed.Hub) *Server {
	return &Server{sockPath: sockPath, eng: eng, store: store, hub: hub}
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	if strings.TrimSpace(s.sockPath) == "" {
		s.sockPath = ipc.SockPath()
	}
	_ = os.Remove(s.sockPath)
	if err := os.MkdirAll(filepath.Dir(s.sockPath), 0o755); err != nil {
		return err
	}

	addr := &net.UnixAddr{Name: s.sockPath, Net: "unix"}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	_ = os.Chmod(s.sockPath, 0o666)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		c, err := ln.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			continue
		}
		go s.handleConn(ctx, c)
	}
}

func (s *Server) handleConn(ctx context.Context, c *net.UnixConn) {
	defer c.Close()

	_ = c.SetDeadline(time.Now().Add(15 * time.Second))
	r := bufio.NewReaderSize(c, 1<<20)
	line, err := r.ReadBytes('\n')
	if err != nil {
		_, _ = c.Write(ipc.MustLine(ipc.NewErrorf("read: %v", err)))
		return
	}
	typ, err := ipc.DecodeType(line)
	if err != nil {
		_, _ = c.Write(ipc.MustLine(ipc.NewErrorf("decode type: %v", err)))
		return
	}

	switch typ {
	case ipc.MsgTypeStatus:
		st, err := s.eng.Status()
		if err != nil {
			_, _ = c.Write(ipc.MustLine(ipc.NewErrorf("status: %v", err)))
			return
		}
		_, _ = c.Write(ipc.MustLine(ipc.StatusResponse{
			Type:        ipc.MsgTypeStatusOK,
			StartedAt:   st.StartedAt,
			UptimeNS:    st.UptimeNS,
			Events:      st.Events,
			Alerts:      st.Alerts,
			Subscribers: st.Subscribers,
			LastEventID: st.LastEventID,
			LastAlertID: st.LastAlertID,
		}))
	case ipc.MsgTypeGetEvents:
		var req ipc.EventsRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_, _ = c.Write(ipc.MustLine(ipc.NewErrorf("decode get_events: %v", err)))
			return
		}
		evs, err := s.queryEvents(req)
		if err != nil {
			_, _ = c.Write(ipc.MustLine(ipc.NewErrorf("get_events: %v", err)))
			return
		}
		_, _ = c.Write(ipc.MustLine(ipc.EventsResponse{Type: ipc.MsgTypeEventsOK, Events: evs}))
	case ipc.MsgTypeGetAlerts:
		var req ipc.AlertsRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_, _ = c.Write(ipc.MustLine(ipc.NewErrorf("decode get_alerts: %v", err)))
			return
		}
		alerts, err := s.queryAlerts(req)
		if err != nil {
			_, _ = c.Write(ipc.MustLine(ipc.NewErrorf("get_alerts: %v", err)))
			return
		}
		_, _ = c.Write(ipc.MustLine(ipc.AlertsResponse{Type: ipc.MsgTypeAlertsOK, Alerts: alerts}))
	case ipc.MsgTypeGetAggregates:
		var req ipc.AggregatesRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_, _ = c.Write(ipc.MustLine(ipc.NewErrorf("decode get_aggregates: %v", err)))
			return
		}
		agg, err := s.store.AggregatesByTime(req.SinceTS, req.UntilTS)
		if err != nil {
			_, _ = c.Write(ipc.MustLine(ipc.NewErrorf("get_aggregates: %v", err)))
			return
		}
		_, _ = c.Write(ipc.MustLine(ipc.AggregatesResponse{Type: ipc.MsgTypeAggregatesOK, Aggregates: agg}))
	case ipc.MsgTypeSubscribe:
		var req ipc.SubscribeRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_, _ = c.Write(ipc.MustLine(ipc.NewErrorf("decode subscribe: %v", err)))
			return
		}
		s.serveSubscription(ctx, c, req)
	default:
		_, _ = c.Write(ipc.MustLine(ipc.NewErrorf("unknown message type %q", typ)))
	}
}

func (s *Server) queryEvents(req ipc.EventsRequest) ([]model.Event, error) {
	switch {
	case req.Recent > 0:
		return s.store.RecentEvents(req.Recent)
	case req.FromID > 0 || req.ToID > 0:
		lo, hi := req.FromID, req.ToID
		if lo <= 0 {
			lo = 1
		}
		if hi <= 0 {
			hi = math.MaxInt64
		}
		return s.store.EventsByID(lo, hi)
	default:
		return s.store.EventsByTime(req.SinceTS, req.UntilTS, model.Kind(req.Kind))
	}
}

func (s *Server) queryAlerts(req ipc.AlertsRequest) ([]model.Alert, error) {
	if req.Recent > 0 {
		return s.store.RecentAlerts(req.Recent, req.IncludeSuppressed)
	}
	return s.store.AlertsByTime(req.SinceTS, req.UntilTS, model.Severity(req.Severity), req.IncludeSuppressed)
}

// serveSubscription streams feed items until the client disconnects or ctx
// is cancelled. Writes carry a short deadline so one stuck client cannot
// pin the goroutine; the per-subscriber backlog already protects ingestion.
func (s *Server) serveSubscription(ctx context.Context, c *net.UnixConn, req ipc.SubscribeRequest) {
	_ = c.SetDeadline(time.Time{})

	sub := s.hub.Subscribe(req.IncludeSuppressed)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-sub.C():
			if !ok {
				return
			}
			out := ipc.FeedItem{
				Type:   ipc.MsgTypeFeedItem,
				Event:  item.Event,
				Alert:  item.Alert,
				Missed: sub.Missed(),
			}
			_ = c.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if _, err := c.Write(ipc.MustLine(out)); err != nil {
				return
			}
		}
	}
}
