// Package leads stores customer applications and their audit trail.
package leads

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a lead. Values are a stable wire contract.
type Status string

const (
	StatusNew           Status = "new"
	StatusInProgress    Status = "in_progress"
	StatusCallCompleted Status = "call_completed"
	StatusProcessed     Status = "processed"
	StatusDeleted       Status = "deleted"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusNew, StatusInProgress, StatusCallCompleted, StatusProcessed, StatusDeleted}

// Valid reports whether s is one of Statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseStatus validates raw against the status enumeration.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", fmt.Errorf("invalid status %q", raw)
	}
	return s, nil
}

// Source tags where a lead came from.
type Source string

const (
	SourceWebsiteForm Source = "website_form"
	SourceCalculator  Source = "calculator"
	SourceTelegramBot Source = "telegram_bot"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceWebsiteForm, SourceCalculator, SourceTelegramBot:
		return true
	}
	return false
}

// Priority orders leads for operators.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityNormal || p == PriorityHigh
}

// Action types written to the audit trail.
const (
	ActionStatusChange = "status_change"
	ActionCalled       = "called"
	ActionMessaged     = "messaged"
)

// Action is one audit trail entry. Status transitions fill From, To and
// Comment; other actions use Details.
type Action struct {
	Type    string    `json:"type"`
	By      string    `json:"by"`
	At      time.Time `json:"at"`
	Details string    `json:"details,omitempty"`
	From    Status    `json:"from,omitempty"`
	To      Status    `json:"to,omitempty"`
	Comment string    `json:"comment,omitempty"`
}

// Note is a free-text annotation left by an operator.
type Note struct {
	Text string    `json:"text"`
	By   string    `json:"by,omitempty"`
	At   time.Time `json:"at"`
}

// Lead is a customer application.
type Lead struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Message   string    `json:"message,omitempty"`
	Source    Source    `json:"source"`
	Priority  Priority  `json:"priority"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Actions   []Action  `json:"actions"`
	Notes     []Note    `json:"notes"`
}

// NewLead carries the caller supplied fields of a lead being created.
type NewLead struct {
	Name     string
	Phone    string
	Email    string
	Message  string
	Source   Source
	Priority Priority
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Status   Status
	Priority Priority
}

func (f Filter) match(l Lead) bool {
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	if f.Priority != "" && l.Priority != f.Priority {
		return false
	}
	return true
}

// Stats aggregates leads by status.
type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"byStatus"`
}
