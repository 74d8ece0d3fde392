package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/mizuno-sec/vigil/internal/ipc"
)

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func addSockFlag(fs *flag.FlagSet) *string {
	return fs.String("sock", ipc.SockPath(), "vigild unix socket path (override: VIGIL_SOCK)")
}

// sinceTS converts a lookback duration to the absolute nanosecond bound the
// query interface expects. Zero means no lower bound.
func sinceTS(lookback time.Duration) int64 {
	if lookback <= 0 {
		return 0
	}
	return time.Now().Add(-lookback).UnixNano()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func errUsage(fs *flag.FlagSet, format string, args ...any) error {
	fs.Usage()
	return fmt.Errorf(format, args...)
}
