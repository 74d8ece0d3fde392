// Package storage persists the Event and Alert streams: an append-only
// JSONL file per stream as the durable record, and a SQLite index for
// queries. Appends are serialized; reads go through the index and never see
// partial records.
package storage

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/mizuno-sec/vigil/internal/model"
)

const (
	eventsFile = "events.jsonl"
	alertsFile = "alerts.jsonl"
	indexFile  = "index.sqlite"
)

type Store struct {
	mu  sync.Mutex
	dir string

	events *JSONLWriter
	alerts *JSONLWriter
	sql    *SQLite

	lastEventID int64
	lastAlertID int64
}

// Open opens (or creates) the store under dir and recovers the id
// high-water marks so id sequences continue across restarts.
func Open(dir string) (*Store, error) {
	events, err := NewJSONLWriter(filepath.Join(dir, eventsFile))
	if err != nil {
		return nil, err
	}
	alerts, err := NewJSONLWriter(filepath.Join(dir, alertsFile))
	if err != nil {
		_ = events.Close()
		return nil, err
	}
	sqlite, err := OpenSQLite(filepath.Join(dir, indexFile))
	if err != nil {
		_ = alerts.Close()
		_ = events.Close()
		return nil, err
	}

	s := &Store{dir: dir, events: events, alerts: alerts, sql: sqlite}
	if s.lastEventID, err = sqlite.maxID("events"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("recover event id: %w", err)
	}
	if s.lastAlertID, err = sqlite.maxID("alerts"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("recover alert id: %w", err)
	}
	return s, nil
}

// LastEventID seeds the normalizer's id sequence and reports the current
// high-water mark for status output.
func (s *Store) LastEventID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventID
}

func (s *Store) LastAlertID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAlertID
}

// AppendEvent writes ev to the JSONL stream and the index. When it returns
// nil the record is queryable and has left the process's buffers.
func (s *Store) AppendEvent(ev model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.events.Append(ev); err != nil {
		return fmt.Errorf("append event %d: %w", ev.ID, err)
	}
	_, err := s.sql.DB.Exec(
		`INSERT INTO events(id, ts, kind, actor, subject, meta_json) VALUES(?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.TS, string(ev.Kind), ev.Actor, ev.Subject, ev.MetaJSON(),
	)
	if err != nil {
		return fmt.Errorf("index event %d: %w", ev.ID, err)
	}
	if ev.ID > s.lastEventID {
		s.lastEventID = ev.ID
	}
	return nil
}

func (s *Store) AppendAlert(a model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.alerts.Append(a); err != nil {
		return fmt.Errorf("append alert %d: %w", a.ID, err)
	}
	_, err := s.sql.DB.Exec(
		`INSERT INTO alerts(id, event_id, ts, rule_id, severity, suppressed, message) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.EventID, a.TS, a.RuleID, string(a.Severity), boolToInt(a.Suppressed), a.Message,
	)
	if err != nil {
		return fmt.Errorf("index alert %d: %w", a.ID, err)
	}
	if a.ID > s.lastAlertID {
		s.lastAlertID = a.ID
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.sql != nil {
		if err := s.sql.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.alerts != nil {
		if err := s.alerts.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func joinErrors(errs []error) error {
	var out error
	for _, e := range errs {
		if e == nil {
			continue
		}
		if out == nil {
			out = e
		} else {
			out = fmt.Errorf("%v; %w", out, e)
		}
	}
	return out
}
