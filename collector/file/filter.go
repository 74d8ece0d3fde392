package file

import (
	"path/filepath"
	"strings"
)

// DefaultIgnoreExts and DefaultIgnoreKeywords trim the editor/system churn
// that would otherwise dominate the stream. Both are overridable from
// configuration.
var (
	DefaultIgnoreExts     = []string{".tmp", ".log", ".ldb", ".sqlite", ".dat", ".lock", ".swp"}
	DefaultIgnoreKeywords = []string{".git", ".cache", "node_modules"}
)

// Filter decides which paths are worth observing.
type Filter struct {
	exts     map[string]struct{}
	keywords []string
}

func NewFilter(ignoreExts, ignoreKeywords []string) *Filter {
	f := &Filter{exts: make(map[string]struct{}, len(ignoreExts))}
	for _, e := range ignoreExts {
		f.exts[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	for _, k := range ignoreKeywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			f.keywords = append(f.keywords, k)
		}
	}
	return f
}

func (f *Filter) Relevant(path string) bool {
	if f == nil {
		return true
	}
	if _, ok := f.exts[strings.ToLower(filepath.Ext(path))]; ok {
		return false
	}
	lower := strings.ToLower(path)
	for _, k := range f.keywords {
		if strings.Contains(lower, k) {
			return false
		}
	}
	return true
}
