package diff

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"jiaming2012/labor-export/models"
	"jiaming2012/labor-export/service"
)

type EngineConfig struct {
	Target          string
	PayPeriod       service.PayPeriod
	LookbackMonths  int
	PriorPeriodMode PriorPeriodMode
	RetractOnTerm   bool
	LogData         bool
	Order           []OrderField
}

// Batch is the ordered set of entries for one run.
type Batch struct {
	ID      string
	Target  string
	Start   time.Time
	End     time.Time
	Entries []models.BatchEntry
}

// Engine computes incremental batches over a Store and drives their outcome.
type Engine struct {
	store Store
	cfg   EngineConfig
	now   func() time.Time
}

func NewEngine(store Store, cfg EngineConfig) *Engine {
	if len(cfg.Order) == 0 {
		cfg.Order = DefaultOrder
	}

	if cfg.PriorPeriodMode == "" {
		cfg.PriorPeriodMode = OnChange
	}

	return &Engine{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// SetClock replaces the time source used to clamp the export window.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// ComputeBatch returns every new, changed or retracted entry for the window. The window
// is clamped to the current pay period minus the lookback through tomorrow.
func (e *Engine) ComputeBatch(ctx context.Context, windowStart, windowEnd time.Time, graceMinutes int) (*Batch, error) {
	if graceMinutes < 0 {
		return nil, &models.ConfigurationError{Reason: fmt.Sprintf("grace period must not be negative, got %d minutes", graceMinutes)}
	}

	start, end, err := service.ExportWindow(e.now(), windowStart, windowEnd, e.cfg.PayPeriod, e.cfg.LookbackMonths)
	if err != nil {
		return nil, &models.ConfigurationError{Reason: "invalid export window", Err: err}
	}

	logger := log.WithField("target", e.cfg.Target)
	logger.Infof("computing differences for %s - %s with %d minute grace period", start.Format("2006-01-02"), end.Format("2006-01-02"), graceMinutes)

	batchID, err := e.store.ComputeDifferences(ctx, MatchCondition{Target: e.cfg.Target}, Params{
		StartDate:           start,
		EndDate:             end,
		NegateNumericFields: true,
		RetractOnTerm:       e.cfg.RetractOnTerm,
		PriorPeriodMode:     e.cfg.PriorPeriodMode,
		GraceMinutes:        graceMinutes,
		LogData:             e.cfg.LogData,
	})
	if err != nil {
		return nil, &models.DiffComputationError{Op: "compute differences", Err: err}
	}

	entries, err := e.store.GetExportDetails(ctx, batchID, e.cfg.Order)
	if err != nil {
		if rbErr := e.store.RollbackExport(ctx, batchID); rbErr != nil {
			logger.Errorf("failed to roll back batch %s: %v", batchID, rbErr)
		}
		return nil, &models.DiffComputationError{Op: "get export details", Err: err}
	}

	logger.WithField("batch", batchID).Infof("batch contains %d entries", len(entries))

	return &Batch{
		ID:      batchID,
		Target:  e.cfg.Target,
		Start:   start,
		End:     end,
		Entries: entries,
	}, nil
}

// Commit persists the batch outcome and advances the watermark.
func (e *Engine) Commit(ctx context.Context, b *Batch) error {
	if err := e.store.CommitExport(ctx, b.ID); err != nil {
		return &models.DiffComputationError{Op: "commit export", Err: err}
	}
	return nil
}

// Rollback discards the batch. The watermark is left where it was.
func (e *Engine) Rollback(ctx context.Context, b *Batch) error {
	if err := e.store.RollbackExport(ctx, b.ID); err != nil {
		return &models.DiffComputationError{Op: "rollback export", Err: err}
	}
	return nil
}

// RollbackEntry excludes one entry from the batch so that it is reconsidered next run.
func (e *Engine) RollbackEntry(ctx context.Context, b *Batch, entry models.BatchEntry) error {
	if err := e.store.RollbackRecord(ctx, b.ID, entry); err != nil {
		return &models.DiffComputationError{Op: "rollback record", Err: err}
	}
	return nil
}
