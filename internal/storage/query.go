package storage

import (
	"database/sql"
	"encoding/json"

	"github.com/mizuno-sec/vigil/internal/model"
)

// EventsByTime returns events with since <= ts < until in ascending id
// order. kind filters when non-empty. until <= 0 means no upper bound.
func (s *Store) EventsByTime(since, until int64, kind model.Kind) ([]model.Event, error) {
	q := `SELECT id, ts, kind, actor, subject, meta_json FROM events WHERE ts >= ?`
	args := []any{since}
	if until > 0 {
		q += ` AND ts < ?`
		args = append(args, until)
	}
	if kind != "" {
		q += ` AND kind = ?`
		args = append(args, string(kind))
	}
	q += ` ORDER BY id ASC`
	return s.queryEvents(q, args...)
}

// EventsByID returns events with lo <= id <= hi in ascending id order.
func (s *Store) EventsByID(lo, hi int64) ([]model.Event, error) {
	return s.queryEvents(
		`SELECT id, ts, kind, actor, subject, meta_json FROM events WHERE id >= ? AND id <= ? ORDER BY id ASC`,
		lo, hi,
	)
}

// RecentEvents returns the n newest events in ascending id order.
func (s *Store) RecentEvents(n int) ([]model.Event, error) {
	if n <= 0 {
		n = 20
	}
	evs, err := s.queryEvents(
		`SELECT id, ts, kind, actor, subject, meta_json FROM events ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	reverseEvents(evs)
	return evs, nil
}

// AlertsByTime returns alerts with since <= ts < until in ascending id
// order. severity filters when non-empty; suppressed alerts are excluded
// unless includeSuppressed is set.
func (s *Store) AlertsByTime(since, until int64, severity model.Severity, includeSuppressed bool) ([]model.Alert, error) {
	q := `SELECT id, event_id, ts, rule_id, severity, suppressed, message FROM alerts WHERE ts >= ?`
	args := []any{since}
	if until > 0 {
		q += ` AND ts < ?`
		args = append(args, until)
	}
	if severity != "" {
		q += ` AND severity = ?`
		args = append(args, string(severity))
	}
	if !includeSuppressed {
		q += ` AND suppressed = 0`
	}
	q += ` ORDER BY id ASC`
	return s.queryAlerts(q, args...)
}

// RecentAlerts returns the n newest alerts in ascending id order.
func (s *Store) RecentAlerts(n int, includeSuppressed bool) ([]model.Alert, error) {
	if n <= 0 {
		n = 20
	}
	q := `SELECT id, event_id, ts, rule_id, severity, suppressed, message FROM alerts`
	if !includeSuppressed {
		q += ` WHERE suppressed = 0`
	}
	q += ` ORDER BY id DESC LIMIT ?`
	alerts, err := s.queryAlerts(q, n)
	if err != nil {
		return nil, err
	}
	reverseAlerts(alerts)
	return alerts, nil
}

// Aggregates are the dashboard KPI counts over a time window.
type Aggregates struct {
	Kinds      map[string]int `json:"kinds"`
	Severities map[string]int `json:"severities"`
}

func (s *Store) AggregatesByTime(since, until int64) (Aggregates, error) {
	out := Aggregates{Kinds: map[string]int{}, Severities: map[string]int{}}

	if err := s.countGrouped(`SELECT kind, COUNT(*) FROM events WHERE ts >= ?`+untilClause(until)+` GROUP BY kind`, out.Kinds, since, until); err != nil {
		return out, err
	}
	if err := s.countGrouped(`SELECT severity, COUNT(*) FROM alerts WHERE ts >= ?`+untilClause(until)+` GROUP BY severity`, out.Severities, since, until); err != nil {
		return out, err
	}
	return out, nil
}

// Totals reports stream sizes for status output.
func (s *Store) Totals() (events int64, alerts int64, err error) {
	if err = s.sql.DB.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&events); err != nil {
		return 0, 0, err
	}
	if err = s.sql.DB.QueryRow(`SELECT COUNT(*) FROM alerts`).Scan(&alerts); err != nil {
		return 0, 0, err
	}
	return events, alerts, nil
}

func untilClause(until int64) string {
	if until > 0 {
		return ` AND ts < ?`
	}
	return ``
}

func (s *Store) countGrouped(q string, into map[string]int, since, until int64) error {
	args := []any{since}
	if until > 0 {
		args = append(args, until)
	}
	rows, err := s.sql.DB.Query(q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var c int
		if err := rows.Scan(&key, &c); err != nil {
			return err
		}
		into[key] = c
	}
	return rows.Err()
}

func (s *Store) queryEvents(q string, args ...any) ([]model.Event, error) {
	rows, err := s.sql.DB.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Event, 0, 64)
	for rows.Next() {
		var ev model.Event
		var kind string
		var metaJSON sql.NullString
		if err := rows.Scan(&ev.ID, &ev.TS, &kind, &ev.Actor, &ev.Subject, &metaJSON); err != nil {
			return nil, err
		}
		ev.Kind = model.Kind(kind)
		if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "{}" {
			_ = json.Unmarshal([]byte(metaJSON.String), &ev.Meta)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) queryAlerts(q string, args ...any) ([]model.Alert, error) {
	rows, err := s.sql.DB.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Alert, 0, 64)
	for rows.Next() {
		var a model.Alert
		var severity string
		var suppressed int
		if err := rows.Scan(&a.ID, &a.EventID, &a.TS, &a.RuleID, &severity, &suppressed, &a.Message); err != nil {
			return nil, err
		}
		a.Severity = model.Severity(severity)
		a.Suppressed = suppressed != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

func reverseEvents(evs []model.Event) {
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}
}

func reverseAlerts(as []model.Alert) {
	for i, j := 0, len(as)-1; i < j; i, j = i+1, j-1 {
		as[i], as[j] = as[j], as[i]
	}
}
