package domain

import "time"

// DecisionKind distinguishes entry proposals from exit confirmations.
type DecisionKind string

const (
	DecisionEntry DecisionKind = "entry"
	DecisionExit  DecisionKind = "exit"
)

// DecisionStatus is the approval state of a pending decision.
type DecisionStatus string

const (
	DecisionAwaiting DecisionStatus = "awaiting"
	DecisionApproved DecisionStatus = "approved"
	DecisionRejected DecisionStatus = "rejected"
	DecisionExpired  DecisionStatus = "expired"
)

// PendingDecision is a trade awaiting human approval. At most one entry
// decision is active at a time.
type PendingDecision struct {
	ID        string
	Kind      DecisionKind
	Subject   string // Position.ID for exits, JSON EntryProposal for entries
	CreatedAt time.Time
	ExpiresAt time.Time
	Status    DecisionStatus
}

// Active reports whether the decision still awaits a verdict at now.
func (d *PendingDecision) Active(now time.Time) bool {
	return d.Status == DecisionAwaiting && now.Before(d.ExpiresAt)
}

// EntryProposal is the subject of an entry decision: what the orchestrator
// wants to buy and at which defcon the proposal was made.
type EntryProposal struct {
	Symbols []string `json:"symbols"`
	Qty     float64  `json:"qty"`
	Defcon  int      `json:"defcon"`
}
