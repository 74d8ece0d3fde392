package feed

import (
	"testing"
	"time"

	"github.com/mizuno-sec/vigil/internal/model"
)

func ev(id int64) model.Event {
	return model.Event{ID: id, Kind: model.KindFileModify, Actor: "u", Subject: "/tmp/x"}
}

func alert(id int64, suppressed bool) model.Alert {
	return model.Alert{ID: id, EventID: id, RuleID: "T1", Severity: model.SeverityInfo, Suppressed: suppressed}
}

func recvItem(t *testing.T, s *Subscriber) Item {
	t.Helper()
	select {
	case it, ok := <-s.C():
		if !ok {
			t.Fatal("subscriber channel closed")
		}
		return it
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for item")
	}
	return Item{}
}

func TestHub_LateSubscriberMissesHistory(t *testing.T) {
	h := NewHub(16)
	h.PublishEvent(ev(50))

	sub := h.Subscribe(false)
	defer sub.Close()

	h.PublishEvent(ev(51))
	it := recvItem(t, sub)
	if it.Event == nil || it.Event.ID != 51 {
		t.Fatalf("item=%+v, want event 51 only", it)
	}
	select {
	case extra := <-sub.C():
		t.Fatalf("unexpected extra item: %+v", extra)
	default:
	}
}

func TestHub_SlowSubscriberDropsNeverBlocks(t *testing.T) {
	h := NewHub(2)
	drops := 0
	h.SetDropHook(func() { drops++ })

	sub := h.Subscribe(false)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := int64(1); i <= 5; i++ {
			h.PublishEvent(ev(i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	if got := sub.Missed(); got != 3 {
		t.Errorf("Missed=%d, want 3", got)
	}
	if drops != 3 {
		t.Errorf("drop hook fired %d times, want 3", drops)
	}
	first := recvItem(t, sub)
	second := recvItem(t, sub)
	if first.Event.ID != 1 || second.Event.ID != 2 {
		t.Errorf("backlog holds %d,%d; want oldest undropped 1,2", first.Event.ID, second.Event.ID)
	}
}

func TestHub_SuppressedAlertsFiltered(t *testing.T) {
	h := NewHub(8)
	plain := h.Subscribe(false)
	defer plain.Close()
	all := h.Subscribe(true)
	defer all.Close()

	h.PublishAlert(alert(1, true))
	h.PublishAlert(alert(2, false))

	it := recvItem(t, plain)
	if it.Alert == nil || it.Alert.ID != 2 {
		t.Fatalf("default subscriber got %+v, want only the unsuppressed alert", it)
	}

	first := recvItem(t, all)
	second := recvItem(t, all)
	if first.Alert.ID != 1 || second.Alert.ID != 2 {
		t.Errorf("opted-in subscriber got %d,%d; want 1,2", first.Alert.ID, second.Alert.ID)
	}
}

func TestHub_CloseRemovesSubscriber(t *testing.T) {
	h := NewHub(4)
	sub := h.Subscribe(false)
	if h.Subscribers() != 1 {
		t.Fatalf("Subscribers=%d, want 1", h.Subscribers())
	}
	sub.Close()
	sub.Close() // idempotent
	if h.Subscribers() != 0 {
		t.Fatalf("Subscribers=%d after Close, want 0", h.Subscribers())
	}
	// Publishing after Close must not panic on the closed channel.
	h.PublishEvent(ev(1))
	if _, ok := <-sub.C(); ok {
		t.Error("closed subscriber channel still delivering")
	}
}
