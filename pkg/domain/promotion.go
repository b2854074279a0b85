package domain

import "time"

// ChangeType enumerates the additive schema changes the planner accepts.
type ChangeType string

const (
	ChangeAddColumn ChangeType = "add_column"
	ChangeAddTable  ChangeType = "add_table"
	ChangeAddIndex  ChangeType = "add_index"
)

// Valid reports whether the change type is one the planner supports.
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeAddColumn, ChangeAddTable, ChangeAddIndex:
		return true
	default:
		return false
	}
}

// PromotionStatus is the lifecycle state of a schema promotion. The
// transition is monotonic and one-way: pending → applied | failed.
type PromotionStatus string

const (
	PromotionPending PromotionStatus = "pending"
	PromotionApplied PromotionStatus = "applied"
	PromotionFailed  PromotionStatus = "failed"
)

// SchemaPromotion is a planned additive schema change. Immutable except for
// the status transition; a promotion never returns to pending after leaving
// it, and a failed or applied promotion is never re-executed.
type SchemaPromotion struct {
	PromotionID  string          `json:"promotionId"`
	RequestedBy  string          `json:"requestedBy,omitempty"`
	ChangeType   ChangeType      `json:"changeType"`
	TargetTable  string          `json:"targetTable"`
	TargetColumn string          `json:"targetColumn,omitempty"`
	ColumnType   string          `json:"columnType,omitempty"`
	SQL          string          `json:"sql"`
	Status       PromotionStatus `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	AppliedAt    *time.Time      `json:"appliedAt,omitempty"` // nil until applied
}

// FixRun records one automated remediation run. It is produced by the
// external autofix orchestrator; this layer only stores it with the same
// append/update contract as schema promotions.
type FixRun struct {
	RunID       string    `json:"runId"`
	IssueID     string    `json:"issueId"`
	ExecutionID string    `json:"executionId,omitempty"`
	Status      string    `json:"status"`
	Policy      string    `json:"policy,omitempty"`
	Description string    `json:"description,omitempty"`
	Confidence  *float64  `json:"confidence,omitempty"` // nil when the fixer reported none
	Changes     string    `json:"changes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
