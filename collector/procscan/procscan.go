//go:build linux

// Package procscan reads per-process facts from /proc for the polling
// collectors. It is deliberately low-level: callers decide what becomes an
// observation.
package procscan

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const procRoot = "/proc"

// Stat is the subset of /proc/<pid>/stat the collectors need. StartTicks is
// the process start time in clock ticks since boot; together with the PID it
// identifies one process incarnation.
type Stat struct {
	PID        int
	Comm       string
	PPID       int
	StartTicks uint64
}

// ListPIDs returns the numeric entries of /proc. It fails with the
// underlying error when /proc itself cannot be read, which callers surface
// as a collector-unavailable condition.
func ListPIDs() ([]int, error) {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", procRoot, err)
	}
	out := make([]int, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}
		out = append(out, pid)
	}
	return out, nil
}

// ReadStat parses /proc/<pid>/stat. The comm field is wrapped in parentheses
// and may itself contain spaces and parens, so fields are split after the
// last ')'.
func ReadStat(pid int) (Stat, error) {
	b, err := os.ReadFile(fmt.Sprintf("%s/%d/stat", procRoot, pid))
	if err != nil {
		return Stat{}, err
	}
	s := string(b)
	open := strings.IndexByte(s, '(')
	closeIdx := strings.LastIndexByte(s, ')')
	if open < 0 || closeIdx < open {
		return Stat{}, fmt.Errorf("malformed stat for pid %d", pid)
	}
	comm := s[open+1 : closeIdx]
	rest := strings.Fields(s[closeIdx+1:])
	// rest[0] is state; ppid is field 4 of stat (rest[1]), starttime is field
	// 22 (rest[19]).
	if len(rest) < 20 {
		return Stat{}, fmt.Errorf("short stat for pid %d", pid)
	}
	ppid, err := strconv.Atoi(rest[1])
	if err != nil {
		return Stat{}, fmt.Errorf("parse ppid for pid %d: %w", pid, err)
	}
	start, err := strconv.ParseUint(rest[19], 10, 64)
	if err != nil {
		return Stat{}, fmt.Errorf("parse starttime for pid %d: %w", pid, err)
	}
	return Stat{PID: pid, Comm: comm, PPID: ppid, StartTicks: start}, nil
}

// Exe resolves the executable path. Requires ptrace-level access to the
// target; callers fall back to comm when it fails.
func Exe(pid int) (string, error) {
	return os.Readlink(fmt.Sprintf("%s/%d/exe", procRoot, pid))
}

// Cmdline returns the full command line with NUL separators replaced by
// spaces. An empty string with nil error means the kernel exposes no
// cmdline (kernel thread or zombie).
func Cmdline(pid int) (string, error) {
	b, err := os.ReadFile(fmt.Sprintf("%s/%d/cmdline", procRoot, pid))
	if err != nil {
		return "", err
	}
	s := strings.TrimRight(string(b), "\x00")
	return strings.ReplaceAll(s, "\x00", " "), nil
}

// OwnerUID returns the uid owning the process, from the /proc/<pid>
// directory itself.
func OwnerUID(pid int) (int, error) {
	var st unix.Stat_t
	if err := unix.Stat(fmt.Sprintf("%s/%d", procRoot, pid), &st); err != nil {
		return -1, err
	}
	return int(st.Uid), nil
}
