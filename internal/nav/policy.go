// Package nav decides which screen the UI should show for the current
// session state. The decision function is pure; Evaluator adds the
// once-per-state-change redirect discipline around it.
package nav

import (
	"context"
	"sync"

	"github.com/elicitworks/canvass/internal/transcript"
)

// Screen paths known to the policy.
const (
	PathLanding   = "/"
	PathInterview = "/interview"
	PathThankYou  = "/thank-you"
	PathAbout     = "/about"
)

// selfManaged lists screens that own their own entry/exit logic; the
// policy never redirects from them.
var selfManaged = map[string]bool{
	PathThankYou: true,
	PathAbout:    true,
}

// State is everything a navigation decision depends on.
type State struct {
	Path       string
	ProlificID string
	SessionID  string
	Status     transcript.Status
}

// Action is the kind of decision the policy produced.
type Action int

const (
	// ActionNone means the current screen stands.
	ActionNone Action = iota
	// ActionRedirect means the UI should navigate to Decision.Target.
	ActionRedirect
	// ActionCheckStatus asks for a remote status check; any resulting
	// navigation surfaces on a later evaluation.
	ActionCheckStatus
)

// Decision is the single outcome of one policy evaluation.
type Decision struct {
	Action Action
	Target string
}

func redirect(target string) Decision {
	return Decision{Action: ActionRedirect, Target: target}
}

// Decide maps state to at most one navigation action. Rules are evaluated
// in order, first match wins. Identity absence is a harder precondition
// than status, except on the two screens that manage their own entry/exit;
// status-driven redirection never fires from the landing or interview
// screens directly, to avoid fighting their local setup logic.
func Decide(s State) Decision {
	switch {
	case selfManaged[s.Path]:
		return Decision{Action: ActionNone}

	case s.Path == PathLanding:
		if s.ProlificID != "" && s.SessionID != "" && s.Status == transcript.StatusInProgress {
			return redirect(PathInterview)
		}
		return Decision{Action: ActionNone}

	case s.Path == PathInterview:
		// A missing session ID is fine here: the interview screen is
		// allowed to create one.
		if s.ProlificID == "" {
			return redirect(PathLanding)
		}
		if s.Status == transcript.StatusCompleted {
			// Set by an earlier check; the evaluation that requested that
			// check took no navigation action itself.
			return redirect(PathThankYou)
		}
		return Decision{Action: ActionCheckStatus}

	case s.ProlificID == "":
		return redirect(PathLanding)

	case s.Status == transcript.StatusCompleted && s.Path != PathThankYou:
		return redirect(PathThankYou)

	default:
		return Decision{Action: ActionNone}
	}
}

// StatusChecker triggers a guarded remote status check.
type StatusChecker interface {
	CheckSessionStatus(ctx context.Context)
}

// Evaluator wraps Decide with per-evaluation idempotence: re-evaluating an
// unchanged {path, identity, session, status} tuple never issues a second
// redirect request.
type Evaluator struct {
	checker StatusChecker

	mu         sync.Mutex
	last       State
	redirected bool
	seen       bool
}

// NewEvaluator builds an evaluator. checker may be nil when no remote
// checks are wanted (tests, admin tooling).
func NewEvaluator(checker StatusChecker) *Evaluator {
	return &Evaluator{checker: checker}
}

// Evaluate runs the policy for the given state. Status-check decisions are
// forwarded to the checker (whose own guards apply) and reported as no
// action; a repeated redirect for an unchanged state is suppressed.
func (e *Evaluator) Evaluate(ctx context.Context, s State) Decision {
	e.mu.Lock()
	if e.seen && s == e.last && e.redirected {
		e.mu.Unlock()
		return Decision{Action: ActionNone}
	}
	if !e.seen || s != e.last {
		e.last = s
		e.seen = true
		e.redirected = false
	}
	d := Decide(s)
	if d.Action == ActionRedirect {
		e.redirected = true
	}
	e.mu.Unlock()

	if d.Action == ActionCheckStatus {
		// The checker's own guards decide whether a remote call actually
		// happens; this evaluation takes no navigation action either way.
		if e.checker != nil {
			e.checker.CheckSessionStatus(ctx)
		}
		return Decision{Action: ActionNone}
	}
	return d
}

// Reset clears the evaluator's memory of the last evaluation, for use when
// the owning view tears down and any outstanding redirect intent must die
// with it.
func (e *Evaluator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = false
	e.redirected = false
	e.last = State{}
}
