package cliui

import (
	"fmt"
	"strings"
	"time"
)

func FormatAbsShort(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(0, ts).UTC().Format("15:04:05.000Z")
}

func FormatAbsFull(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(0, ts).UTC().Format(time.RFC3339Nano)
}

// FormatUptime renders a nanosecond duration as trimmed seconds, e.g.
// "12.5s".
func FormatUptime(ns int64) string {
	if ns < 0 {
		return "-"
	}
	return seconds(time.Duration(ns))
}

func seconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	s := fmt.Sprintf("%.3f", sec)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" {
		s = "0"
	}
	return s + "s"
}
