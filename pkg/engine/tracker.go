package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/getmockd/interceptd/internal/matching"
	"github.com/getmockd/interceptd/pkg/mock"
)

// Evaluation is one request offered to a handler.
type Evaluation struct {
	Request  *mock.Request
	Claimed  bool
	Mismatch *matching.Fragment
}

// TimesTracker counts claims against a times expectation. It is not
// synchronized; its owning handler serializes access.
type TimesTracker struct {
	expectation mock.Times
	declaration *CallSite
	retain      bool

	claimed     int
	evaluations []Evaluation
}

// NewTimesTracker creates an unbounded tracker. With retain set, every
// evaluation is kept for diagnostics.
func NewTimesTracker(retain bool) *TimesTracker {
	return &TimesTracker{retain: retain}
}

// SetExpectation replaces the expectation and where it was declared.
func (t *TimesTracker) SetExpectation(times mock.Times, declaration *CallSite) {
	t.expectation = times
	t.declaration = declaration
}

// Expectation returns the configured expectation.
func (t *TimesTracker) Expectation() mock.Times {
	return t.expectation
}

// Allows reports whether one more claim fits the expectation.
func (t *TimesTracker) Allows() bool {
	return t.expectation.Allows(t.claimed)
}

// Record appends an evaluation and counts it when claimed.
func (t *TimesTracker) Record(ev Evaluation) {
	if ev.Claimed {
		t.claimed++
	}
	if t.retain {
		t.evaluations = append(t.evaluations, ev)
	}
}

// Claimed returns the number of claimed requests.
func (t *TimesTracker) Claimed() int {
	return t.claimed
}

// Evaluations returns the retained evaluations.
func (t *TimesTracker) Evaluations() []Evaluation {
	return append([]Evaluation(nil), t.evaluations...)
}

// Clear resets counts and evaluations but keeps the expectation.
func (t *TimesTracker) Clear() {
	t.claimed = 0
	t.evaluations = nil
}

// Reset clears the tracker and restores the unbounded expectation.
func (t *TimesTracker) Reset() {
	t.Clear()
	t.expectation = mock.Unbounded()
	t.declaration = nil
}

// Check verifies the expectation. hasRestrictions selects the "matching
// request" wording and enables the diagnostic block.
func (t *TimesTracker) Check(method, path string, hasRestrictions bool) error {
	exp := t.expectation
	if exp.Satisfied(t.claimed) {
		return nil
	}

	noun := "request"
	if t.claimed == 0 && hasRestrictions {
		noun = "matching request"
	}

	var msg strings.Builder
	switch {
	case exp.IsExact():
		fmt.Fprintf(&msg, "Expected exactly %s, but got %d.", pluralize(exp.Min, noun), t.claimed)
	case exp.Unlimited():
		fmt.Fprintf(&msg, "Expected at least %s, but got %d.", pluralize(exp.Min, noun), t.claimed)
	default:
		fmt.Fprintf(&msg, "Expected at least %d and at most %s, but got %d.", exp.Min, pluralize(exp.Max, noun), t.claimed)
	}

	if hasRestrictions {
		if t.retain {
			msg.WriteString(t.renderEvaluations())
		} else {
			msg.WriteString("\n\nTip: enable request saving to see the requests evaluated by this handler and why they did not match.")
		}
	}

	return &TimesCheckError{
		Message:     msg.String(),
		Declaration: t.declaration,
		Method:      method,
		Path:        path,
	}
}

func (t *TimesTracker) renderEvaluations() string {
	var b strings.Builder
	n := 0
	for _, ev := range t.evaluations {
		if ev.Claimed || ev.Mismatch == nil {
			continue
		}
		if n == 0 {
			b.WriteString("\n\nRequests evaluated by this handler:\n\n")
			b.WriteString("  - Expected\n")
			b.WriteString("  + Received\n")
		}
		n++
		fmt.Fprintf(&b, "\n%d: %s\n", n, ev.Request.String())
		fmt.Fprintf(&b, "  %s:\n", ev.Mismatch.Category)
		fmt.Fprintf(&b, "    - %s\n", ev.Mismatch.Expected)
		fmt.Fprintf(&b, "    + %s", ev.Mismatch.Received)
	}
	return b.String()
}

// pluralize renders "1 request" or "n requests"; a trailing noun is
// pluralized by the number next to it.
func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
