//go:build linux

// Package file watches configured directory trees for create, modify, and
// delete activity via inotify.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/mizuno-sec/vigil/collector/common"
	"github.com/mizuno-sec/vigil/collector/procscan"
	"github.com/mizuno-sec/vigil/internal/model"
)

type Config struct {
	WatchPaths     []string
	CoalesceWindow time.Duration
	IgnoreExts     []string
	IgnoreKeywords []string
}

type Watcher struct {
	cfg    Config
	filter *Filter
	users  *procscan.UserCache

	fd       int
	wdToPath map[int]string
}

func New(cfg Config) *Watcher {
	if len(cfg.WatchPaths) == 0 {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.WatchPaths = []string{home}
		} else {
			cfg.WatchPaths = []string{"."}
		}
	}
	exts := cfg.IgnoreExts
	if exts == nil {
		exts = DefaultIgnoreExts
	}
	keywords := cfg.IgnoreKeywords
	if keywords == nil {
		keywords = DefaultIgnoreKeywords
	}
	return &Watcher{
		cfg:      cfg,
		filter:   NewFilter(exts, keywords),
		users:    procscan.NewUserCache(),
		fd:       -1,
		wdToPath: make(map[int]string),
	}
}

func (w *Watcher) Name() string { return "file" }

func (w *Watcher) Run(ctx context.Context, out chan<- common.Observation) error {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return fmt.Errorf("%w: inotify init: %v", common.ErrUnavailable, err)
	}
	w.fd = fd
	defer func() {
		_ = unix.Close(fd)
		w.fd = -1
		w.wdToPath = make(map[int]string)
	}()

	for _, root := range w.cfg.WatchPaths {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("%w: resolve watch path %s: %v", common.ErrUnavailable, root, err)
		}
		if err := w.addRecursive(abs); err != nil {
			return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
		}
	}

	co := NewCoalescer(w.cfg.CoalesceWindow)
	buf := make([]byte, 256*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := unix.Read(w.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				time.Sleep(25 * time.Millisecond)
				continue
			}
			return fmt.Errorf("%w: inotify read: %v", common.ErrUnavailable, err)
		}
		if n <= 0 {
			continue
		}

		offset := 0
		for offset+unix.SizeofInotifyEvent <= n {
			raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			offset += unix.SizeofInotifyEvent

			name := ""
			if raw.Len > 0 && offset+int(raw.Len) <= n {
				name = strings.TrimRight(string(buf[offset:offset+int(raw.Len)]), "\x00")
				offset += int(raw.Len)
			}

			base := w.wdToPath[int(raw.Wd)]
			path := base
			if name != "" {
				path = filepath.Join(base, name)
			}

			// New subdirectories join the watch so the tree stays covered.
			if raw.Mask&unix.IN_ISDIR != 0 {
				if raw.Mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0 {
					_ = w.addWatch(path)
				}
				continue
			}

			kind := maskToKind(raw.Mask)
			if kind == "" || path == "" || !w.filter.Relevant(path) {
				continue
			}
			now := time.Now()
			if !co.Admit(kind, path, now) {
				continue
			}
			select {
			case out <- w.observation(kind, path, now):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal: home directories
			// routinely contain dirs the monitor cannot enter.
			if path != root {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if !w.filter.Relevant(path + string(os.PathSeparator)) {
			return filepath.SkipDir
		}
		if err := w.addWatch(path); err != nil && path == root {
			return err
		}
		return nil
	})
}

func (w *Watcher) addWatch(path string) error {
	mask := uint32(unix.IN_CREATE | unix.IN_CLOSE_WRITE | unix.IN_MODIFY | unix.IN_DELETE | unix.IN_MOVED_FROM | unix.IN_MOVED_TO | unix.IN_DELETE_SELF)
	wd, err := unix.InotifyAddWatch(w.fd, path, mask)
	if err != nil {
		return fmt.Errorf("inotify add watch %s: %w", path, err)
	}
	w.wdToPath[wd] = path
	return nil
}

func (w *Watcher) observation(kind model.Kind, path string, now time.Time) common.Observation {
	meta := map[string]string{}
	actor := model.ActorUnknown
	if kind != model.KindFileDelete {
		var st unix.Stat_t
		if err := unix.Stat(path, &st); err == nil {
			meta["size"] = strconv.FormatInt(st.Size, 10)
			actor = w.users.Name(int(st.Uid))
		}
	}
	return common.Observation{
		Kind:    kind,
		Time:    now,
		Actor:   actor,
		Subject: path,
		Meta:    meta,
	}
}

func maskToKind(mask uint32) model.Kind {
	switch {
	case mask&(unix.IN_DELETE|unix.IN_DELETE_SELF|unix.IN_MOVED_FROM) != 0:
		return model.KindFileDelete
	case mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0:
		return model.KindFileCreate
	case mask&(unix.IN_CLOSE_WRITE|unix.IN_MODIFY) != 0:
		return model.KindFileModify
	}
	return ""
}
