package domain

import "strings"

// Status is the lifecycle state of an RFI.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusOpen            Status = "open"
	StatusWaitingResponse Status = "waiting_response"
	StatusAnswered        Status = "answered"
	StatusClosed          Status = "closed"
	StatusCancelled       Status = "cancelled"
)

// Statuses lists every lifecycle state in lifecycle order.
var Statuses = []Status{
	StatusDraft,
	StatusOpen,
	StatusWaitingResponse,
	StatusAnswered,
	StatusClosed,
	StatusCancelled,
}

// ParseStatus matches s case-insensitively against the known states.
// Unlike priority and category there is no fallback: unknown states are rejected.
func ParseStatus(s string) (Status, bool) {
	v := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range Statuses {
		if st == v {
			return st, true
		}
	}
	return "", false
}

// Deletable reports whether an RFI in this state may be removed.
func (s Status) Deletable() bool {
	return s == StatusDraft || s == StatusCancelled
}

// Priority is the urgency of an RFI.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"

	DefaultPriority = PriorityMedium
)

// Priorities lists the valid priorities from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// Valid reports whether p is one of Priorities.
func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

// ParsePriority returns the priority matching s case-insensitively, or
// DefaultPriority when s is blank or unrecognized.
func ParsePriority(s string) Priority {
	v := Priority(strings.ToLower(strings.TrimSpace(s)))
	for _, p := range Priorities {
		if p == v {
			return p
		}
	}
	return DefaultPriority
}

// Category classifies the subject matter of an RFI.
type Category string

const (
	CategoryDesign        Category = "design"
	CategoryStructural    Category = "structural"
	CategoryArchitectural Category = "architectural"
	CategoryMEP           Category = "mep"
	CategoryCivil         Category = "civil"
	CategorySpecification Category = "specification"
	CategorySchedule      Category = "schedule"
	CategoryCost          Category = "cost"
	CategorySafety        Category = "safety"
	CategoryOther         Category = "other"

	DefaultCategory = CategoryOther
)

// Categories lists the valid categories.
var Categories = []Category{
	CategoryDesign,
	CategoryStructural,
	CategoryArchitectural,
	CategoryMEP,
	CategoryCivil,
	CategorySpecification,
	CategorySchedule,
	CategoryCost,
	CategorySafety,
	CategoryOther,
}

// Valid reports whether c is one of Categories.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// ParseCategory returns the category matching s case-insensitively, or
// DefaultCategory when s is blank or unrecognized.
func ParseCategory(s string) Category {
	v := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range Categories {
		if c == v {
			return c
		}
	}
	return DefaultCategory
}

// EmailEvent is the kind of row written to the email log.
type EmailEvent string

const (
	EmailEventSent      EmailEvent = "sent"
	EmailEventReceived  EmailEvent = "received"
	EmailEventUnmatched EmailEvent = "unmatched"
)
