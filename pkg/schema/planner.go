// Package schema plans and executes additive schema promotions against the
// analytical store. The planner can only emit CREATE/ALTER-ADD statements;
// a regex guard rejects anything destructive before a record is persisted,
// and the executor applies each pending record exactly once.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spanhouse/spanhouse/pkg/domain"
	"github.com/spanhouse/spanhouse/pkg/storage"
)

// PlanRequest is a schema promotion request as received from the API.
type PlanRequest struct {
	TargetTable  string            `json:"targetTable"`
	ChangeType   domain.ChangeType `json:"changeType"`
	TargetColumn string            `json:"targetColumn"`
	ColumnType   string            `json:"columnType"`
	RequestedBy  string            `json:"requestedBy"`
}

var (
	// Identifiers are restricted to a SQL-safe subset so generated DDL
	// never needs quoting or escaping.
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	columnTypePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_(), ]*$`)

	destructivePattern = regexp.MustCompile(`(?i)\b(DROP\s+TABLE|DROP\s+COLUMN|ALTER\s+TABLE\s+\S+\s+DROP)\b`)
)

// Planner turns promotion requests into pending SchemaPromotion records.
type Planner struct {
	promotions storage.PromotionStore
	logger     *slog.Logger
	now        func() time.Time
}

// NewPlanner creates a planner persisting through the given store.
func NewPlanner(promotions storage.PromotionStore, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		promotions: promotions,
		logger:     logger,
		now:        time.Now,
	}
}

// PlanPromotion validates the request, generates the DDL, and persists the
// record with status pending. Nothing is persisted on any validation failure.
func (p *Planner) PlanPromotion(ctx context.Context, req PlanRequest) (domain.SchemaPromotion, error) {
	if !req.ChangeType.Valid() {
		return domain.SchemaPromotion{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedChangeType, req.ChangeType)
	}
	if err := validateRequest(req); err != nil {
		return domain.SchemaPromotion{}, err
	}

	sql := generateSQL(req)
	if destructivePattern.MatchString(sql) {
		return domain.SchemaPromotion{}, fmt.Errorf("%w: %s", domain.ErrDestructiveDDL, sql)
	}

	record := domain.SchemaPromotion{
		PromotionID:  "promo-" + uuid.NewString(),
		RequestedBy:  req.RequestedBy,
		ChangeType:   req.ChangeType,
		TargetTable:  req.TargetTable,
		TargetColumn: req.TargetColumn,
		ColumnType:   req.ColumnType,
		SQL:          sql,
		Status:       domain.PromotionPending,
		CreatedAt:    p.now().UTC(),
	}
	if err := p.promotions.InsertPromotion(ctx, record); err != nil {
		return domain.SchemaPromotion{}, fmt.Errorf("persist promotion: %w", err)
	}

	p.logger.Info("schema promotion planned",
		"promotion_id", record.PromotionID,
		"change_type", record.ChangeType,
		"table", record.TargetTable)
	return record, nil
}

// GetPromotion looks a stored promotion record up by id.
func (p *Planner) GetPromotion(ctx context.Context, promotionID string) (domain.SchemaPromotion, error) {
	return p.promotions.GetPromotion(ctx, promotionID)
}

func validateRequest(req PlanRequest) error {
	if !identifierPattern.MatchString(req.TargetTable) {
		return fmt.Errorf("%w: target table %q", domain.ErrInvalidIdentifier, req.TargetTable)
	}
	switch req.ChangeType {
	case domain.ChangeAddColumn, domain.ChangeAddIndex:
		if !identifierPattern.MatchString(req.TargetColumn) {
			return fmt.Errorf("%w: target column %q", domain.ErrInvalidIdentifier, req.TargetColumn)
		}
	case domain.ChangeAddTable:
		if !identifierPattern.MatchString(req.TargetColumn) {
			return fmt.Errorf("%w: initial column %q", domain.ErrInvalidIdentifier, req.TargetColumn)
		}
	}
	if req.ChangeType != domain.ChangeAddIndex && !columnTypePattern.MatchString(req.ColumnType) {
		return fmt.Errorf("%w: column type %q", domain.ErrInvalidIdentifier, req.ColumnType)
	}
	return nil
}

// generateSQL is deterministic per request. The template set contains no
// DROP form, so the regex guard in PlanPromotion can only fire on a future
// template regression.
func generateSQL(req PlanRequest) string {
	switch req.ChangeType {
	case domain.ChangeAddColumn:
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
			req.TargetTable, req.TargetColumn, req.ColumnType)
	case domain.ChangeAddTable:
		return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s %s) ENGINE = MergeTree ORDER BY tuple()",
			req.TargetTable, req.TargetColumn, req.ColumnType)
	case domain.ChangeAddIndex:
		return fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)",
			strings.ToLower(req.TargetTable), strings.ToLower(req.TargetColumn),
			req.TargetTable, req.TargetColumn)
	default:
		return ""
	}
}
