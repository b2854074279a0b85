package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spanhouse/spanhouse/pkg/domain"
	"github.com/spanhouse/spanhouse/pkg/storage"
)

// Executor applies pending promotions against the storage engine. Each
// record is a one-shot: once applied or failed it is never re-executed, and
// a retry requires planning a fresh record.
type Executor struct {
	promotions storage.PromotionStore
	engine     storage.DDLExecutor
	logger     *slog.Logger
	now        func() time.Time

	// tableMu serializes promotions per target table. The engine's DDL is
	// additive and idempotent, but two concurrent add_column promotions on
	// one table still race on the status transition without this.
	mu      sync.Mutex
	tableMu map[string]*sync.Mutex
}

// NewExecutor creates an executor running DDL through the given engine.
func NewExecutor(promotions storage.PromotionStore, engine storage.DDLExecutor, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		promotions: promotions,
		engine:     engine,
		logger:     logger,
		now:        time.Now,
		tableMu:    make(map[string]*sync.Mutex),
	}
}

// ExecutePromotion runs the promotion's DDL and records the outcome. Engine
// failures are recorded as a failed record and logged, not returned as an
// error: the caller always sees the structured outcome.
func (e *Executor) ExecutePromotion(ctx context.Context, promotionID string) (domain.SchemaPromotion, error) {
	record, err := e.promotions.GetPromotion(ctx, promotionID)
	if err != nil {
		return domain.SchemaPromotion{}, err
	}

	lock := e.lockForTable(record.TargetTable)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the table lock in case a concurrent call already moved
	// this record out of pending.
	record, err = e.promotions.GetPromotion(ctx, promotionID)
	if err != nil {
		return domain.SchemaPromotion{}, err
	}
	if record.Status != domain.PromotionPending {
		return domain.SchemaPromotion{}, fmt.Errorf("%w: promotion %s is %s", domain.ErrInvalidState, promotionID, record.Status)
	}

	if execErr := e.engine.ExecuteDDL(ctx, record.SQL); execErr != nil {
		e.logger.Error("schema promotion failed",
			"promotion_id", promotionID,
			"table", record.TargetTable,
			"error", execErr)
		if err := e.promotions.UpdatePromotionStatus(ctx, promotionID, domain.PromotionFailed, nil); err != nil {
			return domain.SchemaPromotion{}, fmt.Errorf("record failure: %w", err)
		}
		record.Status = domain.PromotionFailed
		return record, nil
	}

	appliedAt := e.now().UTC()
	if err := e.promotions.UpdatePromotionStatus(ctx, promotionID, domain.PromotionApplied, &appliedAt); err != nil {
		return domain.SchemaPromotion{}, fmt.Errorf("record success: %w", err)
	}
	record.Status = domain.PromotionApplied
	record.AppliedAt = &appliedAt

	e.logger.Info("schema promotion applied",
		"promotion_id", promotionID,
		"table", record.TargetTable,
		"sql", record.SQL)
	return record, nil
}

// PendingPromotions lists records still awaiting execution, newest first.
func (e *Executor) PendingPromotions(ctx context.Context) ([]domain.SchemaPromotion, error) {
	return e.promotions.ListPromotionsByStatus(ctx, domain.PromotionPending)
}

func (e *Executor) lockForTable(table string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.tableMu[table]
	if !ok {
		lock = &sync.Mutex{}
		e.tableMu[table] = lock
	}
	return lock
}
