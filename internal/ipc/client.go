package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client talks to vigild over its unix socket. Each request opens a fresh
// connection; Subscribe holds its connection open and streams.
type Client struct {
	Sock string
}

func NewClient(sock string) *Client {
	if sock == "" {
		sock = SockPath()
	}
	return &Client{Sock: sock}
}

func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.roundtrip(ctx, StatusRequest{Type: MsgTypeStatus}, MsgTypeStatusOK, &resp)
	return resp, err
}

func (c *Client) Events(ctx context.Context, req EventsRequest) (EventsResponse, error) {
	req.Type = MsgTypeGetEvents
	var resp EventsResponse
	err := c.roundtrip(ctx, req, MsgTypeEventsOK, &resp)
	return resp, err
}

func (c *Client) Alerts(ctx context.Context, req AlertsRequest) (AlertsResponse, error) {
	req.Type = MsgTypeGetAlerts
	var resp AlertsResponse
	err := c.roundtrip(ctx, req, MsgTypeAlertsOK, &resp)
	return resp, err
}

func (c *Client) Aggregates(ctx context.Context, req AggregatesRequest) (AggregatesResponse, error) {
	req.Type = MsgTypeGetAggregates
	var resp AggregatesResponse
	err := c.roundtrip(ctx, req, MsgTypeAggregatesOK, &resp)
	return resp, err
}

// Subscribe streams feed items to fn until ctx is cancelled, the server
// goes away, or fn returns an error.
func (c *Client) Subscribe(ctx context.Context, req SubscribeRequest, fn func(FeedItem) error) error {
	req.Type = MsgTypeSubscribe
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	if _, err := conn.Write(MustLine(req)); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	r := bufio.NewReaderSize(conn, 1<<20)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		typ, err := DecodeType(line)
		if err != nil {
			return err
		}
		if typ == MsgTypeError {
			var e ErrorResponse
			_ = json.Unmarshal(line, &e)
			return fmt.Errorf("server: %s", e.Error)
		}
		var item FeedItem
		if err := json.Unmarshal(line, &item); err != nil {
			return fmt.Errorf("decode feed item: %w", err)
		}
		if err := fn(item); err != nil {
			return err
		}
	}
}

func (c *Client) roundtrip(ctx context.Context, req any, wantType string, resp any) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(15 * time.Second))

	if _, err := conn.Write(MustLine(req)); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	r := bufio.NewReaderSize(conn, 1<<20)
	line, err := r.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	typ, err := DecodeType(line)
	if err != nil {
		return err
	}
	if typ == MsgTypeError {
		var e ErrorResponse
		_ = json.Unmarshal(line, &e)
		return fmt.Errorf("server: %s", e.Error)
	}
	if typ != wantType {
		return fmt.Errorf("unexpected response type %q", typ)
	}
	return json.Unmarshal(line, resp)
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.Sock)
	if err != nil {
		return nil, fmt.Errorf("connect %s (is vigild running?): %w", c.Sock, err)
	}
	return conn, nil
}
