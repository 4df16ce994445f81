package conversation

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in the conversation. Messages are never mutated once
// appended; IDs come from a per-manager sequence, not the clock.
type Message struct {
	ID        uint64
	Role      Role
	Content   string // raw text for users, Markdown for the assistant
	Timestamp time.Time
}

// State is a point-in-time copy of the conversation.
type State struct {
	Messages []Message
	Draft    string
	Loading  bool
	Err      string // empty when there is no error to show
}

// Outcome describes how a submission ended.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
	OutcomeCancelled  // Cancel or Reset was called
	OutcomeSuperseded // a newer Submit replaced it
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}
