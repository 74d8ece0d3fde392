package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mizuno-sec/vigil/internal/cliui"
	"github.com/mizuno-sec/vigil/internal/ipc"
	"github.com/mizuno-sec/vigil/internal/model"
)

func EventsCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("events", os.Stderr)
	sock := addSockFlag(fs)
	since := fs.Duration("since", 0, "only events newer than this lookback (e.g. 10m)")
	kind := fs.String("kind", "", "filter by kind (process_start|process_end|command_exec|file_create|file_modify|file_delete)")
	recent := fs.Int("recent", 0, "show only the N most recent events")
	fromID := fs.Int64("from-id", 0, "lower bound of an id range query")
	toID := fs.Int64("to-id", 0, "upper bound of an id range query")
	asJSON := fs.Bool("json", false, "print raw JSON")
	colorFlag := fs.String("color", "auto", "color output: auto|always|never")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *kind != "" && !model.ValidKind(model.Kind(*kind)) {
		return errUsage(fs, "invalid kind %q", *kind)
	}
	mode, err := cliui.ParseColorMode(*colorFlag)
	if err != nil {
		return err
	}

	resp, err := ipc.NewClient(*sock).Events(ctx, ipc.EventsRequest{
		SinceTS: sinceTS(*since),
		Kind:    *kind,
		FromID:  *fromID,
		ToID:    *toID,
		Recent:  *recent,
	})
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(os.Stdout, resp.Events)
	}

	col := cliui.NewColorizer(mode, false, os.Stdout)
	rows := make([][]string, 0, len(resp.Events))
	for _, ev := range resp.Events {
		rows = append(rows, []string{
			fmt.Sprintf("%d", ev.ID),
			cliui.FormatAbsShort(ev.TS),
			col.Kind(string(ev.Kind)),
			ev.Actor,
			ev.Subject,
		})
	}
	cliui.RenderTable(os.Stdout, []cliui.Column{
		{Name: "id", AlignRight: true},
		{Name: "time"},
		{Name: "kind"},
		{Name: "actor", MaxWidth: 16},
		{Name: "subject", MaxWidth: 100},
	}, rows)
	return nil
}

func AggregatesCommand(ctx context.Context, args []string) error {
	fs := newFlagSet("aggregates", os.Stderr)
	sock := addSockFlag(fs)
	since := fs.Duration("since", time.Hour, "aggregation window lookback")
	asJSON := fs.Bool("json", false, "print raw JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := ipc.NewClient(*sock).Aggregates(ctx, ipc.AggregatesRequest{SinceTS: sinceTS(*since)})
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(os.Stdout, resp.Aggregates)
	}

	pairs := make([]cliui.KV, 0, len(resp.Kinds))
	for _, k := range []string{"process_start", "process_end", "command_exec", "file_create", "file_modify", "file_delete"} {
		if c, ok := resp.Kinds[k]; ok {
			pairs = append(pairs, cliui.KV{K: k, V: fmt.Sprintf("%d", c)})
		}
	}
	fmt.Println("events: " + cliui.JoinKV(pairs...))

	pairs = pairs[:0]
	for _, s := range []string{"critical", "warning", "info"} {
		if c, ok := resp.Severities[s]; ok {
			pairs = append(pairs, cliui.KV{K: s, V: fmt.Sprintf("%d", c)})
		}
	}
	if len(pairs) == 0 {
		fmt.Println("alerts: none")
		return nil
	}
	fmt.Println("alerts: " + cliui.JoinKV(pairs...))
	return nil
}

func parseSeverity(v string) (model.Severity, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return "", nil
	}
	s := model.Severity(v)
	if !model.ValidSeverity(s) {
		return "", fmt.Errorf("invalid severity %q (expected info|warning|critical)", v)
	}
	return s, nil
}
