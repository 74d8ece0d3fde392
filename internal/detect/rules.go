package detect

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mizuno-sec/vigil/internal/model"
)

// Rules are data loaded once at startup and immutable afterwards. The
// predicate language is a fixed set of tagged clauses rather than
// executable code, so evaluation stays sandboxed and testable.
type Rule struct {
	ID             string         `yaml:"id"`
	Title          string         `yaml:"title"`
	Kinds          []model.Kind   `yaml:"kinds"`
	Severity       model.Severity `yaml:"severity"`
	ThrottleWindow string         `yaml:"throttle_window,omitempty"`
	When           WhenClause     `yaml:"when"`
	Message        string         `yaml:"message"`

	throttle time.Duration
	tmpl     *template.Template
}

// WhenClause holds the predicate variants; every set clause must match
// (AND). At least one clause is required.
type WhenClause struct {
	SubjectPrefix      string         `yaml:"subject_prefix,omitempty"`
	SubjectPrefixAny   []string       `yaml:"subject_prefix_any,omitempty"`
	SubjectIn          []string       `yaml:"subject_in,omitempty"`
	SubjectRegex       string         `yaml:"subject_regex,omitempty"`
	SubjectContainsAll []string       `yaml:"subject_contains_all,omitempty"`
	SubjectContainsAny []string       `yaml:"subject_contains_any,omitempty"`
	MetaGte            *MetaThreshold `yaml:"meta_gte,omitempty"`

	regex *regexp.Regexp
}

// MetaThreshold matches when the named metadata key parses as an integer
// greater than or equal to Value.
type MetaThreshold struct {
	Key   string `yaml:"key"`
	Value int64  `yaml:"value"`
}

const builtinRulesFile = "rules/default_rules.yaml"

//go:embed rules/*.yaml
var rulesFS embed.FS

// LoadDefaultRules loads the embedded built-in ruleset. home is substituted
// for $HOME in subject clauses.
func LoadDefaultRules(home string) ([]Rule, error) {
	b, err := rulesFS.ReadFile(builtinRulesFile)
	if err != nil {
		return nil, fmt.Errorf("read builtin rules (%s): %w", builtinRulesFile, err)
	}
	return LoadRulesYAML(b, home)
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

func LoadRulesYAML(b []byte, home string) ([]Rule, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(b, &rf); err != nil {
		return nil, fmt.Errorf("parse rules yaml: %w", err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("no rules in yaml")
	}
	out := make([]Rule, 0, len(rf.Rules))
	seen := map[string]struct{}{}
	for _, r := range rf.Rules {
		if err := validateAndCompileRule(&r, home); err != nil {
			return nil, fmt.Errorf("rule %q: %w", strings.TrimSpace(r.ID), err)
		}
		if _, ok := seen[r.ID]; ok {
			return nil, fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

func (r *Rule) AppliesTo(k model.Kind) bool {
	for _, rk := range r.Kinds {
		if rk == k {
			return true
		}
	}
	return false
}

// Throttle is the parsed throttle window; zero means no throttling.
func (r *Rule) Throttle() time.Duration { return r.throttle }

func (r *Rule) match(ev model.Event) bool {
	w := &r.When
	if w.SubjectPrefix != "" && !strings.HasPrefix(ev.Subject, w.SubjectPrefix) {
		return false
	}
	if len(w.SubjectPrefixAny) > 0 && !anyPrefix(ev.Subject, w.SubjectPrefixAny) {
		return false
	}
	if len(w.SubjectIn) > 0 && !inSet(ev.Subject, w.SubjectIn) {
		return false
	}
	if w.regex != nil && !w.regex.MatchString(ev.Subject) {
		return false
	}
	lower := strings.ToLower(ev.Subject)
	for _, s := range w.SubjectContainsAll {
		if !strings.Contains(lower, strings.ToLower(s)) {
			return false
		}
	}
	if len(w.SubjectContainsAny) > 0 {
		hit := false
		for _, s := range w.SubjectContainsAny {
			if strings.Contains(lower, strings.ToLower(s)) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if w.MetaGte != nil && !metaGte(ev.Meta, w.MetaGte) {
		return false
	}
	return true
}

func (r *Rule) renderMessage(ev model.Event) string {
	if r.tmpl == nil {
		return r.Title
	}
	var buf bytes.Buffer
	data := map[string]any{
		"subject": ev.Subject,
		"actor":   ev.Actor,
		"kind":    string(ev.Kind),
		"meta":    ev.Meta,
	}
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return r.Title
	}
	return buf.String()
}

func anyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func inSet(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func metaGte(meta map[string]string, th *MetaThreshold) bool {
	raw, ok := meta[th.Key]
	if !ok {
		return false
	}
	var v int64
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return false
	}
	return v >= th.Value
}

func validateAndCompileRule(r *Rule, home string) error {
	r.ID = strings.TrimSpace(r.ID)
	r.Title = strings.TrimSpace(r.Title)
	r.Message = strings.TrimSpace(r.Message)

	if r.ID == "" {
		return fmt.Errorf("missing id")
	}
	if r.Title == "" {
		return fmt.Errorf("missing title")
	}
	if !model.ValidSeverity(r.Severity) {
		return fmt.Errorf("invalid severity %q", r.Severity)
	}
	if len(r.Kinds) == 0 {
		return fmt.Errorf("missing kinds")
	}
	for _, k := range r.Kinds {
		if !model.ValidKind(k) {
			return fmt.Errorf("invalid kind %q", k)
		}
	}
	if r.Message == "" {
		return fmt.Errorf("missing message")
	}
	if strings.TrimSpace(r.ThrottleWindow) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(r.ThrottleWindow))
		if err != nil {
			return fmt.Errorf("invalid throttle_window: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("negative throttle_window")
		}
		r.throttle = d
	}

	if err := validateWhen(&r.When, home); err != nil {
		return err
	}

	t, err := template.New(r.ID).Option("missingkey=zero").Parse(r.Message)
	if err != nil {
		return fmt.Errorf("parse message template: %w", err)
	}
	r.tmpl = t
	return nil
}

func validateWhen(w *WhenClause, home string) error {
	if strings.TrimSpace(w.SubjectPrefix) != "" && len(w.SubjectPrefixAny) > 0 {
		return fmt.Errorf("when: only one of subject_prefix/subject_prefix_any may be set")
	}

	set := 0
	w.SubjectPrefix = expandHome(w.SubjectPrefix, home)
	if w.SubjectPrefix != "" {
		set++
	}
	for i, p := range w.SubjectPrefixAny {
		w.SubjectPrefixAny[i] = expandHome(p, home)
	}
	if len(w.SubjectPrefixAny) > 0 {
		set++
	}
	for i, p := range w.SubjectIn {
		w.SubjectIn[i] = expandHome(p, home)
	}
	if len(w.SubjectIn) > 0 {
		set++
	}
	if strings.TrimSpace(w.SubjectRegex) != "" {
		re, err := compileSubjectRegex(w.SubjectRegex, home)
		if err != nil {
			return fmt.Errorf("when: invalid subject_regex: %w", err)
		}
		w.regex = re
		set++
	}
	if len(w.SubjectContainsAll) > 0 {
		set++
	}
	if len(w.SubjectContainsAny) > 0 {
		set++
	}
	if w.MetaGte != nil {
		if strings.TrimSpace(w.MetaGte.Key) == "" {
			return fmt.Errorf("when: meta_gte requires key")
		}
		set++
	}
	if set == 0 {
		return fmt.Errorf("when: at least one clause is required")
	}
	return nil
}

func expandHome(s, home string) string {
	s = strings.TrimSpace(s)
	if home == "" {
		return s
	}
	return strings.ReplaceAll(s, "$HOME", home)
}

func compileSubjectRegex(pattern, home string) (*regexp.Regexp, error) {
	s := strings.TrimSpace(pattern)
	homeReplacement := regexp.QuoteMeta("$HOME")
	if strings.TrimSpace(home) != "" {
		homeReplacement = regexp.QuoteMeta(home)
	}
	s = strings.ReplaceAll(s, "$HOME", homeReplacement)
	return regexp.Compile(s)
}
