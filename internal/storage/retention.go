package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Policy bounds a stream's growth. Zero values disable the corresponding
// bound. Removal is always oldest-first, so the surviving ids stay
// monotonic.
type Policy struct {
	MaxAge   time.Duration
	MaxCount int64
}

func (p Policy) enabled() bool { return p.MaxAge > 0 || p.MaxCount > 0 }

// ApplyRetention removes the oldest records beyond each stream's policy,
// independently per stream: the index rows are deleted and the JSONL file
// compacted in place (rewrite + rename). Appends are blocked for the
// duration, so callers run it on a background ticker, not per append.
func (s *Store) ApplyRetention(now time.Time, events, alerts Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if events.enabled() {
		if err := s.retainStream("events", s.events, filepath.Join(s.dir, eventsFile), now, events); err != nil {
			return fmt.Errorf("retention events: %w", err)
		}
	}
	if alerts.enabled() {
		if err := s.retainStream("alerts", s.alerts, filepath.Join(s.dir, alertsFile), now, alerts); err != nil {
			return fmt.Errorf("retention alerts: %w", err)
		}
	}
	return nil
}

func (s *Store) retainStream(table string, w *JSONLWriter, path string, now time.Time, p Policy) error {
	minKeep, err := s.minKeepID(table, now, p)
	if err != nil {
		return err
	}
	if minKeep <= 0 {
		return nil
	}

	if _, err := s.sql.DB.Exec(`DELETE FROM `+table+` WHERE id < ?`, minKeep); err != nil {
		return err
	}
	return compactJSONL(w, path, minKeep)
}

// minKeepID computes the smallest id that survives the policy; everything
// below it is dropped. Returns 0 when nothing needs to go.
func (s *Store) minKeepID(table string, now time.Time, p Policy) (int64, error) {
	var minKeep int64

	if p.MaxCount > 0 {
		var id sql.NullInt64
		err := s.sql.DB.QueryRow(
			`SELECT id FROM `+table+` ORDER BY id DESC LIMIT 1 OFFSET ?`, p.MaxCount-1,
		).Scan(&id)
		if err != nil && err != sql.ErrNoRows {
			return 0, err
		}
		if id.Valid && id.Int64 > minKeep {
			minKeep = id.Int64
		}
	}

	if p.MaxAge > 0 {
		cutoff := now.Add(-p.MaxAge).UnixNano()
		var maxExpired sql.NullInt64
		err := s.sql.DB.QueryRow(
			`SELECT MAX(id) FROM `+table+` WHERE ts < ?`, cutoff,
		).Scan(&maxExpired)
		if err != nil {
			return 0, err
		}
		if maxExpired.Valid && maxExpired.Int64+1 > minKeep {
			minKeep = maxExpired.Int64 + 1
		}
	}

	return minKeep, nil
}

type idOnly struct {
	ID int64 `json:"id"`
}

// compactJSONL rewrites the stream keeping only records with id >= minKeep.
// The writer's handle is swapped to the compacted file so later appends
// land in the right place.
func compactJSONL(w *JSONLWriter, path string, minKeep int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.w.Flush(); err != nil {
		return err
	}

	tmp := path + ".compact"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	werr := readJSONLLines(path, func(line []byte) error {
		var rec idOnly
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		if rec.ID < minKeep {
			return nil
		}
		if _, err := out.Write(line); err != nil {
			return err
		}
		_, err := out.Write([]byte{'\n'})
		return err
	})
	if werr != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return werr
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	_ = w.f.Close()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("reopen %s after compaction: %w", path, err)
	}
	w.f = f
	w.w.Reset(f)
	return nil
}
