package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/tbourn/rfi-tracker/internal/domain"
)

// transitions lists the legal edges of the RFI state machine. Cancellation is
// handled separately: every state except cancelled may move to cancelled.
var transitions = map[domain.Status]domain.Status{
	domain.StatusDraft:           domain.StatusOpen,
	domain.StatusOpen:            domain.StatusWaitingResponse,
	domain.StatusWaitingResponse: domain.StatusAnswered,
	domain.StatusAnswered:        domain.StatusClosed,
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to domain.Status) bool {
	if to == domain.StatusCancelled {
		return from != domain.StatusCancelled
	}
	next, ok := transitions[from]
	return ok && next == to
}

// allowedFrom lists the legal targets from a state, for error messages.
func allowedFrom(from domain.Status) []string {
	var out []string
	if next, ok := transitions[from]; ok {
		out = append(out, string(next))
	}
	if from != domain.StatusCancelled {
		out = append(out, string(domain.StatusCancelled))
	}
	return out
}

func transitionError(from, to domain.Status) error {
	allowed := allowedFrom(from)
	if len(allowed) == 0 {
		return fmt.Errorf("%w: cannot transition from %s to %s; %s is terminal", ErrInvalidState, from, to, from)
	}
	return fmt.Errorf("%w: cannot transition from %s to %s; allowed: %s",
		ErrInvalidState, from, to, strings.Join(allowed, ", "))
}

// applyTransition moves r to target in memory and returns the column updates
// to persist: the new status plus the single timestamp the target implies.
// Other timestamps are left untouched.
func applyTransition(r *domain.RFI, target domain.Status, now time.Time) (map[string]any, error) {
	if !CanTransition(r.Status, target) {
		return nil, transitionError(r.Status, target)
	}
	fields := map[string]any{"status": target}
	switch target {
	case domain.StatusWaitingResponse:
		r.SentAt = &now
		fields["sent_at"] = now
	case domain.StatusAnswered:
		r.RespondedAt = &now
		fields["responded_at"] = now
	case domain.StatusClosed:
		r.ClosedAt = &now
		fields["closed_at"] = now
	}
	r.Status = target
	return fields, nil
}
