package detect

import (
	"fmt"
	"sync"

	"github.com/mizuno-sec/vigil/internal/model"
)

// Finding is a rule match for one Event, before the engine stamps an alert
// id onto it.
type Finding struct {
	RuleID     string
	Severity   model.Severity
	Suppressed bool
	Message    string
}

// EvalError reports a fault inside one rule's evaluation. It is isolated:
// the event's other rules and all later events are unaffected.
type EvalError struct {
	RuleID  string
	EventID int64
	Err     error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("rule %s on event %d: %v", e.RuleID, e.EventID, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// Engine evaluates every event against the loaded rules in registration
// order. Throttle state is keyed by (rule, actor, subject): repeats within
// a rule's window are still recorded but marked suppressed, so evidence is
// never lost while the live view stays readable.
type Engine struct {
	rules []Rule

	mu       sync.Mutex
	lastFire map[string]int64 // throttle key -> ts of last unsuppressed fire
}

func NewEngine(rules []Rule) *Engine {
	return &Engine{rules: rules, lastFire: make(map[string]int64)}
}

func (e *Engine) Rules() []Rule { return e.rules }

// Evaluate returns the findings for ev plus any per-rule evaluation errors.
// Callers must finish handling one event's findings before evaluating the
// next event from the same stream so throttle decisions stay consistent.
func (e *Engine) Evaluate(ev model.Event) ([]Finding, []error) {
	var findings []Finding
	var errs []error
	for i := range e.rules {
		r := &e.rules[i]
		if !r.AppliesTo(ev.Kind) {
			continue
		}
		f, matched, err := e.evalRule(r, ev)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if matched {
			findings = append(findings, f)
		}
	}
	return findings, errs
}

func (e *Engine) evalRule(r *Rule, ev model.Event) (f Finding, matched bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			matched = false
			err = &EvalError{RuleID: r.ID, EventID: ev.ID, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	if !r.match(ev) {
		return Finding{}, false, nil
	}

	suppressed := false
	if w := r.Throttle(); w > 0 {
		key := r.ID + "\x00" + ev.Actor + "\x00" + ev.Subject
		e.mu.Lock()
		if last, ok := e.lastFire[key]; ok && ev.TS-last < int64(w) {
			suppressed = true
		} else {
			e.lastFire[key] = ev.TS
		}
		e.mu.Unlock()
	}

	return Finding{
		RuleID:     r.ID,
		Severity:   r.Severity,
		Suppressed: suppressed,
		Message:    r.renderMessage(ev),
	}, true, nil
}
