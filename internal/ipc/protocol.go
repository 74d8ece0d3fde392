// Package ipc defines the JSONL protocol between vigild and its clients
// (the vigil CLI and the dashboard): one JSON message per line, every
// message carrying a "type" field. Subscribe responses stream one line per
// feed item until the client disconnects.
package ipc

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mizuno-sec/vigil/internal/model"
	"github.com/mizuno-sec/vigil/internal/storage"
)

const (
	MsgTypeStatus        = "status"
	MsgTypeStatusOK      = "status_ok"
	MsgTypeGetEvents     = "get_events"
	MsgTypeEventsOK      = "events_ok"
	MsgTypeGetAlerts     = "get_alerts"
	MsgTypeAlertsOK      = "alerts_ok"
	MsgTypeGetAggregates = "get_aggregates"
	MsgTypeAggregatesOK  = "aggregates_ok"
	MsgTypeSubscribe     = "subscribe"
	MsgTypeFeedItem      = "feed_item"
	MsgTypeError         = "error"
)

const DefaultSockPath = "/run/vigil.sock"

// SockPath returns the socket path, honoring the VIGIL_SOCK override.
func SockPath() string {
	if p := strings.TrimSpace(os.Getenv("VIGIL_SOCK")); p != "" {
		return p
	}
	return DefaultSockPath
}

type Envelope struct {
	Type string `json:"type"`
}

type StatusRequest struct {
	Type string `json:"type"`
}

type StatusResponse struct {
	Type        string `json:"type"`
	StartedAt   int64  `json:"started_at"`
	UptimeNS    int64  `json:"uptime_ns"`
	Events      int64  `json:"events"`
	Alerts      int64  `json:"alerts"`
	Subscribers int    `json:"subscribers"`
	LastEventID int64  `json:"last_event_id"`
	LastAlertID int64  `json:"last_alert_id"`
}

// EventsRequest selects one query shape: Recent when > 0, else an id range
// when FromID or ToID is set, else a time range.
type EventsRequest struct {
	Type    string `json:"type"`
	SinceTS int64  `json:"since_ts,omitempty"`
	UntilTS int64  `json:"until_ts,omitempty"`
	Kind    string `json:"kind,omitempty"`
	FromID  int64  `json:"from_id,omitempty"`
	ToID    int64  `json:"to_id,omitempty"`
	Recent  int    `json:"recent,omitempty"`
}

type EventsResponse struct {
	Type   string        `json:"type"`
	Events []model.Event `json:"events"`
}

type AlertsRequest struct {
	Type              string `json:"type"`
	SinceTS           int64  `json:"since_ts,omitempty"`
	UntilTS           int64  `json:"until_ts,omitempty"`
	Severity          string `json:"severity,omitempty"`
	IncludeSuppressed bool   `json:"include_suppressed,omitempty"`
	Recent            int    `json:"recent,omitempty"`
}

type AlertsResponse struct {
	Type   string        `json:"type"`
	Alerts []model.Alert `json:"alerts"`
}

type AggregatesRequest struct {
	Type    string `json:"type"`
	SinceTS int64  `json:"since_ts,omitempty"`
	UntilTS int64  `json:"until_ts,omitempty"`
}

type AggregatesResponse struct {
	Type string `json:"type"`
	storage.Aggregates
}

type SubscribeRequest struct {
	Type              string `json:"type"`
	IncludeSuppressed bool   `json:"include_suppressed,omitempty"`
}

// FeedItem carries one live Event or Alert. Missed is the cumulative count
// of items dropped for this subscriber; a client seeing it grow should
// re-query the store to fill the gap.
type FeedItem struct {
	Type   string       `json:"type"`
	Event  *model.Event `json:"event,omitempty"`
	Alert  *model.Alert `json:"alert,omitempty"`
	Missed int64        `json:"missed,omitempty"`
}

type ErrorResponse struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewErrorf(format string, args ...any) ErrorResponse {
	return ErrorResponse{Type: MsgTypeError, Error: fmt.Sprintf(format, args...)}
}

// MustLine marshals v followed by a newline. Protocol types marshal
// infallibly; a failure is a programming error.
func MustLine(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("ipc marshal: %v", err))
	}
	return append(b, '\n')
}

func DecodeType(line []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if strings.TrimSpace(env.Type) == "" {
		return "", fmt.Errorf("missing message type")
	}
	return env.Type, nil
}
