package model

import "time"

// Priority ranks a recommendation for attention.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Rank returns a sortable weight, higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Recommendation is an actionable item generated from a BlindSpotMetric
// snapshot.
type Recommendation struct {
	TaxonomyID       TaxonomyID `json:"taxonomy_id"`
	Code             string     `json:"code"`
	Priority         Priority   `json:"priority"`
	Action           string     `json:"action"`
	EvidenceRequired bool       `json:"evidence_required"`
	AdjustedBSI      float64    `json:"adjusted_bsi"`
	IncidentPct      float64    `json:"incident_pct"`
}

// ActionState is the lifecycle state of a ProposedAction.
type ActionState string

const (
	ActionDetected      ActionState = "DETECTED"
	ActionProposed      ActionState = "PROPOSED"
	ActionPendingReview ActionState = "PENDING_HUMAN_REVIEW"
	ActionApproved      ActionState = "APPROVED"
	ActionRejected      ActionState = "REJECTED"
	ActionApplied       ActionState = "APPLIED"
	ActionCancelled     ActionState = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s ActionState) Terminal() bool {
	switch s {
	case ActionRejected, ActionApplied, ActionCancelled:
		return true
	}
	return false
}

// AllActionStates returns every defined lifecycle state.
func AllActionStates() []ActionState {
	return []ActionState{
		ActionDetected,
		ActionProposed,
		ActionPendingReview,
		ActionApproved,
		ActionRejected,
		ActionApplied,
		ActionCancelled,
	}
}

// ProposedAction wraps one Recommendation as a durable, resumable task
// record. The wait for human review survives process restarts; resumption
// is driven by an external decision event.
type ProposedAction struct {
	ID             string         `json:"id"`
	RunID          string         `json:"run_id"`
	Recommendation Recommendation `json:"recommendation"`
	State          ActionState    `json:"state"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	// LastNotifiedAt is zero until the first escalation notification.
	LastNotifiedAt time.Time `json:"last_notified_at,omitzero"`
}

// ActionEvent is one append-only audit trail entry for a ProposedAction.
type ActionEvent struct {
	ID        string      `json:"id"`
	ActionID  string      `json:"action_id"`
	FromState ActionState `json:"from_state"`
	ToState   ActionState `json:"to_state"`
	Actor     string      `json:"actor,omitempty"`
	Rationale string      `json:"rationale,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// DecisionEvent is the human decision input consumed by the orchestrator.
type DecisionEvent struct {
	ActionID  string    `json:"action_id"`
	Decision  string    `json:"decision"` // "approve" or "reject"
	Actor     string    `json:"actor"`
	Rationale string    `json:"rationale"`
	Timestamp time.Time `json:"timestamp"`
}
