package file

import "testing"

func TestFilter_Relevant(t *testing.T) {
	f := NewFilter(DefaultIgnoreExts, DefaultIgnoreKeywords)
	cases := []struct {
		path string
		want bool
	}{
		{"/home/u/notes.txt", true},
		{"/home/u/report.pdf", true},
		{"/home/u/.bashrc", true},
		{"/home/u/scratch.tmp", false},
		{"/var/log/app.log", false},
		{"/home/u/Editor.SWP", false}, // extension match is case-insensitive
		{"/home/u/proj/.git/HEAD", false},
		{"/home/u/proj/node_modules/x/index.js", false},
		{"/home/u/.cache/thumb.png", false},
		{"/home/u/gitlog.md", true}, // keyword ".git" must not match "gitlog"
	}
	for _, tc := range cases {
		if got := f.Relevant(tc.path); got != tc.want {
			t.Errorf("Relevant(%q)=%v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestFilter_NilAndEmpty(t *testing.T) {
	var nilf *Filter
	if !nilf.Relevant("/anything.tmp") {
		t.Error("nil filter should pass everything")
	}
	empty := NewFilter(nil, nil)
	if !empty.Relevant("/home/u/x.tmp") {
		t.Error("empty filter should pass everything")
	}
}
