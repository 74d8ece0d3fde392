package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mizuno-sec/vigil/internal/cliui"
	"github.com/mizuno-sec/vigil/internal/ipc"
)

// WatchCommand streams the live feed to stdout until interrupted. It shows
// only items appended after the subscription starts; use events/alerts for
// history.
func WatchCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("watch", os.Stderr)
	sock := addSockFlag(fs)
	suppressed := fs.Bool("suppressed", false, "include throttled (suppressed) alerts")
	asJSON := fs.Bool("json", false, "print one JSON line per item")
	colorFlag := fs.String("color", "auto", "color output: auto|always|never")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mode, err := cliui.ParseColorMode(*colorFlag)
	if err != nil {
		return err
	}
	col := cliui.NewColorizer(mode, false, os.Stdout)

	var lastMissed int64
	err = ipc.NewClient(*sock).Subscribe(ctx, ipc.SubscribeRequest{IncludeSuppressed: *suppressed}, func(item ipc.FeedItem) error {
		if *asJSON {
			return printJSON(os.Stdout, item)
		}
		if item.Missed > lastMissed {
			fmt.Fprintf(os.Stderr, "warning: feed dropped %d items; re-query the store to fill the gap\n", item.Missed-lastMissed)
			lastMissed = item.Missed
		}
		switch {
		case item.Event != nil:
			ev := item.Event
			fmt.Println(cliui.JoinKV(
				cliui.KV{K: "time", V: cliui.FormatAbsShort(ev.TS)},
				cliui.KV{K: "event", V: fmt.Sprintf("%d", ev.ID)},
				cliui.KV{K: "kind", V: col.Kind(string(ev.Kind))},
				cliui.KV{K: "actor", V: ev.Actor},
				cliui.KV{K: "subject", V: cliui.Truncate(ev.Subject, 120)},
			))
		case item.Alert != nil:
			a := item.Alert
			fmt.Println(cliui.JoinKV(
				cliui.KV{K: "time", V: cliui.FormatAbsShort(a.TS)},
				cliui.KV{K: "alert", V: fmt.Sprintf("%d", a.ID)},
				cliui.KV{K: "sev", V: col.Severity(string(a.Severity))},
				cliui.KV{K: "rule", V: a.RuleID},
				cliui.KV{K: "msg", V: cliui.Truncate(a.Message, 120)},
			))
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
