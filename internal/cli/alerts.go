package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/mizuno-sec/vigil/internal/cliui"
	"github.com/mizuno-sec/vigil/internal/ipc"
)

func AlertsCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("alerts", os.Stderr)
	sock := addSockFlag(fs)
	since := fs.Duration("since", 0, "only alerts newer than this lookback (e.g. 10m)")
	severity := fs.String("severity", "", "filter by severity (info|warning|critical)")
	suppressed := fs.Bool("suppressed", false, "include throttled (suppressed) alerts")
	recent := fs.Int("recent", 0, "show only the N most recent alerts")
	asJSON := fs.Bool("json", false, "print raw JSON")
	colorFlag := fs.String("color", "auto", "color output: auto|always|never")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sev, err := parseSeverity(*severity)
	if err != nil {
		return errUsage(fs, "%v", err)
	}
	mode, err := cliui.ParseColorMode(*colorFlag)
	if err != nil {
		return err
	}

	resp, err := ipc.NewClient(*sock).Alerts(ctx, ipc.AlertsRequest{
		SinceTS:           sinceTS(*since),
		Severity:          string(sev),
		IncludeSuppressed: *suppressed,
		Recent:            *recent,
	})
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(os.Stdout, resp.Alerts)
	}

	col := cliui.NewColorizer(mode, false, os.Stdout)
	rows := make([][]string, 0, len(resp.Alerts))
	for _, a := range resp.Alerts {
		supp := ""
		if a.Suppressed {
			supp = "y"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", a.ID),
			fmt.Sprintf("%d", a.EventID),
			cliui.FormatAbsShort(a.TS),
			col.Severity(string(a.Severity)),
			a.RuleID,
			supp,
			a.Message,
		})
	}
	cliui.RenderTable(os.Stdout, []cliui.Column{
		{Name: "id", AlignRight: true},
		{Name: "event", AlignRight: true},
		{Name: "time"},
		{Name: "sev"},
		{Name: "rule"},
		{Name: "sup"},
		{Name: "message", MaxWidth: 100},
	}, rows)
	return nil
}
