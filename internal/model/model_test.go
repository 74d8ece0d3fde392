package model

import (
	"encoding/json"
	"testing"
)

func TestValidKind(t *testing.T) {
	for _, k := range []Kind{KindProcessStart, KindProcessEnd, KindCommandExec, KindFileCreate, KindFileModify, KindFileDelete} {
		if !ValidKind(k) {
			t.Errorf("ValidKind(%q)=false", k)
		}
	}
	if ValidKind("file_rename") || ValidKind("") {
		t.Error("invalid kinds accepted")
	}
}

func TestSeverityRank(t *testing.T) {
	if !(SeverityRank(SeverityCritical) > SeverityRank(SeverityWarning) &&
		SeverityRank(SeverityWarning) > SeverityRank(SeverityInfo) &&
		SeverityRank(SeverityInfo) > SeverityRank("bogus")) {
		t.Error("severity ordering broken")
	}
	if ValidSeverity("urgent") {
		t.Error("invalid severity accepted")
	}
}

func TestEventMetaJSON(t *testing.T) {
	ev := Event{ID: 1, Kind: KindFileCreate}
	if got := ev.MetaJSON(); got != "{}" {
		t.Errorf("nil meta: %q, want {}", got)
	}
	ev.Meta = map[string]string{"pid": "42"}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(ev.MetaJSON()), &decoded); err != nil {
		t.Fatalf("MetaJSON not valid JSON: %v", err)
	}
	if decoded["pid"] != "42" {
		t.Errorf("meta round trip: %v", decoded)
	}
}
