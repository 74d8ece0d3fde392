package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mizuno-sec/vigil/internal/cli"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	prog := filepath.Base(os.Args[0])
	if len(os.Args) < 2 {
		printRootHelp(prog)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "status":
		err = cli.StatusCommand(ctx, args)
	case "events":
		err = cli.EventsCommand(ctx, args)
	case "alerts":
		err = cli.AlertsCommand(ctx, args)
	case "aggregates":
		err = cli.AggregatesCommand(ctx, args)
	case "watch":
		err = cli.WatchCommand(ctx, args)
	case "help", "-h", "--help":
		printRootHelp(prog)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printRootHelp(prog)
		return 2
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func printRootHelp(prog string) {
	fmt.Fprintf(os.Stderr, `usage: %s <command> [flags]

commands:
  status      engine uptime and stream totals
  events      query stored events by time, id range, or recency
  alerts      query stored alerts (suppressed excluded by default)
  aggregates  event/alert counts over a time window
  watch       stream new events and alerts live

run "%s <command> -h" for command flags.
`, prog, prog)
}
