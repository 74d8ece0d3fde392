package engine

import (
	"testing"
	"time"

	"github.com/mizuno-sec/vigil/internal/config"
	"github.com/mizuno-sec/vigil/internal/detect"
	"github.com/mizuno-sec/vigil/internal/feed"
	"github.com/mizuno-sec/vigil/internal/metrics"
	"github.com/mizuno-sec/vigil/internal/model"
	"github.com/mizuno-sec/vigil/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, *storage.Store, *feed.Hub) {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	rules, err := detect.LoadDefaultRules("")
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	hub := feed.NewHub(32)
	eng := New(config.Default(), store, detect.NewEngine(rules), hub, metrics.New())
	return eng, store, hub
}

func TestHandleEvent_PersistsAndAlerts(t *testing.T) {
	eng, store, hub := newTestEngine(t)

	sub := hub.Subscribe(false)
	defer sub.Close()

	ev := model.Event{
		ID: 1, TS: time.Now().UnixNano(), Kind: model.KindCommandExec,
		Actor: "mallory", Subject: "bash -c 'echo cHdk | base64 -d | sh'",
	}
	if err := eng.handleEvent(ev); err != nil {
		t.Fatalf("handleEvent: %v", err)
	}

	// Event durable and queryable.
	evs, err := store.EventsByID(1, 1)
	if err != nil || len(evs) != 1 {
		t.Fatalf("stored events=%v err=%v", evs, err)
	}

	// Exactly one critical alert referencing the event.
	alerts, err := store.AlertsByTime(0, 0, model.SeverityCritical, true)
	if err != nil {
		t.Fatalf("AlertsByTime: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d critical alerts, want 1: %+v", len(alerts), alerts)
	}
	a := alerts[0]
	if a.EventID != ev.ID || a.RuleID != "E100" || a.Suppressed {
		t.Errorf("alert=%+v, want unsuppressed E100 for event 1", a)
	}

	// Feed saw the event then the alert.
	it := <-sub.C()
	if it.Event == nil || it.Event.ID != 1 {
		t.Fatalf("first feed item %+v, want event 1", it)
	}
	it = <-sub.C()
	if it.Alert == nil || it.Alert.ID != a.ID {
		t.Fatalf("second feed item %+v, want alert %d", it, a.ID)
	}
}

func TestHandleEvent_AlertIDsContinueAcrossEvents(t *testing.T) {
	eng, store, _ := newTestEngine(t)

	ts := time.Now().UnixNano()
	events := []model.Event{
		{ID: 1, TS: ts, Kind: model.KindFileDelete, Actor: "root", Subject: "/etc/shadow"},
		{ID: 2, TS: ts + 1, Kind: model.KindFileDelete, Actor: "root", Subject: "/etc/passwd"},
	}
	for _, ev := range events {
		if err := eng.handleEvent(ev); err != nil {
			t.Fatalf("handleEvent %d: %v", ev.ID, err)
		}
	}

	alerts, err := store.AlertsByTime(0, 0, "", true)
	if err != nil {
		t.Fatalf("AlertsByTime: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want 2", len(alerts))
	}
	if alerts[0].ID != 1 || alerts[1].ID != 2 {
		t.Errorf("alert ids %d,%d; want sequential 1,2", alerts[0].ID, alerts[1].ID)
	}
	if alerts[0].EventID != 1 || alerts[1].EventID != 2 {
		t.Errorf("event refs %d,%d; want 1,2", alerts[0].EventID, alerts[1].EventID)
	}
}

func TestHandleEvent_SuppressedAlertStillStored(t *testing.T) {
	eng, store, _ := newTestEngine(t)

	ts := time.Now().UnixNano()
	// F110 throttles /tmp/ drops for 30s: the repeat is stored suppressed.
	for i := int64(1); i <= 2; i++ {
		ev := model.Event{
			ID: i, TS: ts + i, Kind: model.KindFileCreate,
			Actor: "u", Subject: "/tmp/payload",
		}
		if err := eng.handleEvent(ev); err != nil {
			t.Fatalf("handleEvent %d: %v", i, err)
		}
	}

	all, err := store.AlertsByTime(0, 0, "", true)
	if err != nil {
		t.Fatalf("AlertsByTime: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d alerts, want 2 (repeat recorded)", len(all))
	}
	if all[0].Suppressed || !all[1].Suppressed {
		t.Errorf("suppression flags %v,%v; want false,true", all[0].Suppressed, all[1].Suppressed)
	}

	visible, err := store.AlertsByTime(0, 0, "", false)
	if err != nil {
		t.Fatalf("AlertsByTime(visible): %v", err)
	}
	if len(visible) != 1 {
		t.Errorf("default view has %d alerts, want 1", len(visible))
	}
}

func TestStatus(t *testing.T) {
	eng, _, hub := newTestEngine(t)

	sub := hub.Subscribe(false)
	defer sub.Close()

	ev := model.Event{ID: 1, TS: time.Now().UnixNano(), Kind: model.KindFileCreate, Actor: "u", Subject: "/home/u/a"}
	if err := eng.handleEvent(ev); err != nil {
		t.Fatalf("handleEvent: %v", err)
	}

	st, err := eng.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Events != 1 || st.LastEventID != 1 {
		t.Errorf("events=%d lastEventID=%d, want 1,1", st.Events, st.LastEventID)
	}
	if st.Subscribers != 1 {
		t.Errorf("subscribers=%d, want 1", st.Subscribers)
	}
	if st.UptimeNS < 0 || st.StartedAt <= 0 {
		t.Errorf("uptime=%d startedAt=%d", st.UptimeNS, st.StartedAt)
	}
}
