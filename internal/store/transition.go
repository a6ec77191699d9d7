package store

import "fmt"

// Transitions lists the statuses reachable from each status.
var Transitions = map[string][]string{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusApproved, StatusRejected},
	StatusApproved:  {},
	StatusRejected:  {StatusDraft},
}

// ValidateTransition checks whether transitioning from current to target is
// allowed according to the given transition map. The returned error wraps
// ErrConflict.
func ValidateTransition(transitions map[string][]string, current, target string) error {
	allowed, ok := transitions[current]
	if !ok {
		return fmt.Errorf("%w: unknown current state %q", ErrConflict, current)
	}
	for _, s := range allowed {
		if s == target {
			return nil
		}
	}
	return fmt.Errorf("%w: transition from %q to %q is not allowed", ErrConflict, current, target)
}

// applyTransition stamps the workflow timestamps and remarks for target.
func applyTransition(v *Valuation, target, actor, remarks string) {
	now := nowUTC()
	switch target {
	case StatusSubmitted:
		v.SubmittedAt = &now
		v.DecidedAt = nil
	case StatusApproved, StatusRejected:
		v.DecidedAt = &now
		v.ManagerRemarks = remarks
	case StatusDraft:
		v.SubmittedAt = nil
		v.DecidedAt = nil
	}
	v.Status = target
	v.UpdatedBy = actor
	v.UpdatedAt = now
	v.Version++
}
