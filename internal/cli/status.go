package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/mizuno-sec/vigil/internal/cliui"
	"github.com/mizuno-sec/vigil/internal/ipc"
)

func StatusCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("status", os.Stderr)
	sock := addSockFlag(fs)
	asJSON := fs.Bool("json", false, "print raw JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := ipc.NewClient(*sock).Status(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(os.Stdout, st)
	}

	fmt.Println(cliui.JoinKV(
		cliui.KV{K: "started", V: cliui.FormatAbsFull(st.StartedAt)},
		cliui.KV{K: "uptime", V: cliui.FormatUptime(st.UptimeNS)},
	))
	fmt.Println(cliui.JoinKV(
		cliui.KV{K: "events", V: fmt.Sprintf("%d", st.Events)},
		cliui.KV{K: "alerts", V: fmt.Sprintf("%d", st.Alerts)},
		cliui.KV{K: "subscribers", V: fmt.Sprintf("%d", st.Subscribers)},
	))
	fmt.Println(cliui.JoinKV(
		cliui.KV{K: "last_event_id", V: fmt.Sprintf("%d", st.LastEventID)},
		cliui.KV{K: "last_alert_id", V: fmt.Sprintf("%d", st.LastAlertID)},
	))
	return nil
}
