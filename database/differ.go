package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jiaming2012/labor-export/models"
	"jiaming2012/labor-export/service/diff"
)

const (
	batchInProgress = "in_progress"
	batchCommitted  = "committed"
	batchRolledBack = "rolled_back"
)

var orderColumns = map[diff.OrderField]string{
	diff.OrderEmployee:       "employee_id",
	diff.OrderAssignment:     "assignment_id",
	diff.OrderWorkDate:       "work_date",
	diff.OrderPayCode:        "pay_code",
	diff.OrderJobCode:        "job_code",
	diff.OrderFieldWorkOrder: "field_work_order_id",
	diff.OrderRate:           "rate",
}

// Differ is the postgres-backed diff.Store.
type Differ struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDiffer(db *gorm.DB) *Differ {
	return &Differ{
		db:  db,
		now: time.Now,
	}
}

// deletedOrUpdated is the later of the soft delete and the last update. A soft delete only
// sets deleted_at.
const deletedOrUpdated = "CASE WHEN time_entries.deleted_at IS NOT NULL AND time_entries.deleted_at > time_entries.updated_at " +
	"THEN time_entries.deleted_at ELSE time_entries.updated_at END"

func changeColumn(mode diff.PriorPeriodMode) (string, error) {
	switch mode {
	case diff.OnChange, "":
		return deletedOrUpdated, nil
	case diff.OnApproval:
		return "CASE WHEN time_entries.deleted_at IS NOT NULL THEN time_entries.deleted_at " +
			"WHEN time_entries.approved THEN time_entries.approved_at ELSE time_entries.updated_at END", nil
	case diff.UponLock:
		return "COALESCE(time_entries.locked_at, time_entries.deleted_at)", nil
	default:
		return "", fmt.Errorf("unknown prior period mode %q", mode)
	}
}

func orderClause(order []diff.OrderField) (string, error) {
	parts := make([]string, 0, len(order)+1)
	for _, f := range order {
		column, found := orderColumns[f]
		if !found {
			return "", fmt.Errorf("unknown order field %q", f)
		}
		parts = append(parts, column)
	}

	return strings.Join(append(parts, "id"), ", "), nil
}

// SetClock replaces the time source for the batch as-of time.
func (d *Differ) SetClock(now func() time.Time) {
	d.now = now
}

func (d *Differ) ComputeDifferences(ctx context.Context, cond diff.MatchCondition, params diff.Params) (string, error) {
	changed, err := changeColumn(params.PriorPeriodMode)
	if err != nil {
		return "", err
	}

	asOf := d.now()
	batchID := uuid.New().String()
	logger := log.WithFields(log.Fields{"target": cond.Target, "batch": batchID})

	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var watermark Watermark
		found := true
		if err := tx.Where("target = ?", cond.Target).Take(&watermark).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to read watermark: %w", err)
			}
			found = false
		}
		since := diff.Cutoff(watermark.AsOf, found, params.GraceMinutes)

		candidates, err := d.candidates(tx, cond, params, changed, since, asOf)
		if err != nil {
			return err
		}

		exported, err := d.exported(tx, cond.Target)
		if err != nil {
			return err
		}

		terminated, err := d.terminated(tx, cond, params.EndDate)
		if err != nil {
			return err
		}

		changes := diff.Compute(diff.Input{
			Candidates:    candidates,
			Exported:      exported,
			Terminated:    terminated,
			Negate:        params.NegateNumericFields,
			RetractOnTerm: params.RetractOnTerm,
		})

		batch := ExportBatch{
			ID:          batchID,
			Target:      cond.Target,
			Status:      batchInProgress,
			WindowStart: params.StartDate,
			WindowEnd:   params.EndDate,
			Since:       since,
			AsOf:        asOf,
		}
		if err := tx.Create(&batch).Error; err != nil {
			return fmt.Errorf("failed to create batch: %w", err)
		}

		if len(changes) == 0 {
			return nil
		}

		details := make([]BatchDetail, 0, len(changes))
		for _, c := range changes {
			details = append(details, BatchDetail{
				BatchID:     batchID,
				TimeEntryID: c.TimeEntryID,
				Kind:        string(c.Kind),
				EntryValues: NewEntryValues(c.Entry),
			})

			if params.LogData {
				logger.Debugf("%s entry %d: %+v", c.Kind, c.TimeEntryID, c.Entry)
			}
		}

		if err := tx.CreateInBatches(details, 500).Error; err != nil {
			return fmt.Errorf("failed to store batch details: %w", err)
		}

		logger.Infof("%d candidates since %v produced %d details", len(candidates), since, len(details))
		return nil
	})
	if err != nil {
		return "", err
	}

	return batchID, nil
}

func (d *Differ) candidates(tx *gorm.DB, cond diff.MatchCondition, params diff.Params, changed string, since, asOf time.Time) ([]diff.SourceEntry, error) {
	pending := tx.Model(&PendingEntry{}).Select("time_entry_id").Where("target = ?", cond.Target)

	q := tx.Unscoped().Model(&TimeEntry{}).
		Joins("JOIN assignments ON assignments.id = time_entries.assignment_id").
		Where("time_entries.work_date BETWEEN ? AND ?", params.StartDate, params.EndDate).
		Where("assignments.start_date <= ? AND (assignments.end_date IS NULL OR assignments.end_date >= ?)", params.EndDate, params.EndDate).
		Where(fmt.Sprintf("((%[1]s >= ? AND %[1]s <= ?) OR time_entries.id IN (?))", changed), since, asOf, pending)

	if len(cond.EmployeeIDs) > 0 {
		q = q.Where("time_entries.employee_id IN ?", cond.EmployeeIDs)
	}

	var rows []TimeEntry
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query changed time entries: %w", err)
	}

	out := make([]diff.SourceEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, diff.SourceEntry{
			ID:       r.ID,
			Live:     r.Approved && !r.DeletedAt.Valid,
			RawEntry: r.EntryValues.RawEntry(),
		})
	}

	return out, nil
}

func (d *Differ) exported(tx *gorm.DB, target string) (map[uint]models.RawEntry, error) {
	var rows []ExportLedger
	if err := tx.Where("target = ? AND retracted = ?", target, false).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read export ledger: %w", err)
	}

	out := make(map[uint]models.RawEntry, len(rows))
	for _, r := range rows {
		out[r.TimeEntryID] = r.EntryValues.RawEntry()
	}

	return out, nil
}

func (d *Differ) terminated(tx *gorm.DB, cond diff.MatchCondition, asOf time.Time) (map[string]bool, error) {
	var ids []string
	q := tx.Model(&Employee{}).Where("terminated_at IS NOT NULL AND terminated_at <= ?", asOf)
	if len(cond.EmployeeIDs) > 0 {
		q = q.Where("id IN ?", cond.EmployeeIDs)
	}

	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to read terminated employees: %w", err)
	}

	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}

	return out, nil
}

func (d *Differ) GetExportDetails(ctx context.Context, batchID string, order []diff.OrderField) ([]models.BatchEntry, error) {
	orderBy, err := orderClause(order)
	if err != nil {
		return nil, err
	}

	db := d.db.WithContext(ctx)
	if _, err := findBatch(db, batchID, batchInProgress); err != nil {
		return nil, err
	}

	var rows []BatchDetail
	if err := db.Where("batch_id = ?", batchID).Order(orderBy).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read batch details: %w", err)
	}

	out := make([]models.BatchEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.BatchEntry())
	}

	return out, nil
}

// RollbackRecord excludes the detail and every other detail of the same time entry, so
// a retraction and its replacement are committed together or not at all.
func (d *Differ) RollbackRecord(ctx context.Context, batchID string, entry models.BatchEntry) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := findBatch(tx, batchID, batchInProgress)
		if err != nil {
			return err
		}

		res := tx.Model(&BatchDetail{}).Where("id = ? AND batch_id = ?", entry.DetailID, batchID).Update("rolled_back", true)
		if res.Error != nil {
			return fmt.Errorf("failed to roll back detail %d: %w", entry.DetailID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("detail %d not found in batch %s", entry.DetailID, batchID)
		}

		if entry.TimeEntryID == 0 {
			return nil
		}

		err = tx.Model(&BatchDetail{}).
			Where("batch_id = ? AND time_entry_id = ?", batchID, entry.TimeEntryID).
			Update("rolled_back", true).Error
		if err != nil {
			return fmt.Errorf("failed to roll back details of entry %d: %w", entry.TimeEntryID, err)
		}

		pending := PendingEntry{Target: batch.Target, TimeEntryID: entry.TimeEntryID, BatchID: batchID}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&pending).Error
	})
}

func (d *Differ) RollbackExport(ctx context.Context, batchID string) error {
	res := d.db.WithContext(ctx).Model(&ExportBatch{}).
		Where("id = ? AND status = ?", batchID, batchInProgress).
		Update("status", batchRolledBack)
	if res.Error != nil {
		return fmt.Errorf("failed to roll back batch %s: %w", batchID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("batch %s is not in progress", batchID)
	}

	return nil
}

func (d *Differ) CommitExport(ctx context.Context, batchID string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := findBatch(tx.Clauses(clause.Locking{Strength: "UPDATE"}), batchID, batchInProgress)
		if err != nil {
			return err
		}

		var details []BatchDetail
		if err := tx.Where("batch_id = ?", batchID).Order("id").Find(&details).Error; err != nil {
			return fmt.Errorf("failed to read batch details: %w", err)
		}

		stillPending := make(map[uint]bool)
		for _, detail := range details {
			if detail.RolledBack {
				stillPending[detail.TimeEntryID] = true
			}
		}

		var processed []uint
		for _, detail := range details {
			if detail.RolledBack || stillPending[detail.TimeEntryID] {
				continue
			}

			if err := applyToLedger(tx, batch, detail); err != nil {
				return err
			}
			processed = append(processed, detail.TimeEntryID)
		}

		if len(processed) > 0 {
			if err := tx.Where("target = ? AND time_entry_id IN ?", batch.Target, processed).Delete(&PendingEntry{}).Error; err != nil {
				return fmt.Errorf("failed to clear pending entries: %w", err)
			}
		}

		watermark := Watermark{Target: batch.Target, AsOf: batch.AsOf, BatchID: batchID}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "target"}},
			DoUpdates: clause.AssignmentColumns([]string{"as_of", "batch_id", "updated_at"}),
		}).Create(&watermark).Error; err != nil {
			return fmt.Errorf("failed to advance watermark: %w", err)
		}

		return tx.Model(&ExportBatch{}).Where("id = ?", batchID).Update("status", batchCommitted).Error
	})
}

// applyToLedger records an add as the latest exported values and a retraction as backed out.
func applyToLedger(tx *gorm.DB, batch *ExportBatch, detail BatchDetail) error {
	switch models.ChangeKind(detail.Kind) {
	case models.ChangeAdd:
		row := ExportLedger{
			Target:      batch.Target,
			TimeEntryID: detail.TimeEntryID,
			EntryValues: detail.EntryValues,
			BatchID:     batch.ID,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "target"}, {Name: "time_entry_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"employee_id", "assignment_id", "work_date", "pay_code", "hours", "transit_hours",
				"rate", "job_code", "field_work_order_id", "retracted", "batch_id", "updated_at",
			}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to record export of entry %d: %w", detail.TimeEntryID, err)
		}

	case models.ChangeRetract:
		err := tx.Model(&ExportLedger{}).
			Where("target = ? AND time_entry_id = ?", batch.Target, detail.TimeEntryID).
			Updates(map[string]interface{}{"retracted": true, "batch_id": batch.ID}).Error
		if err != nil {
			return fmt.Errorf("failed to record retraction of entry %d: %w", detail.TimeEntryID, err)
		}

	default:
		return fmt.Errorf("unknown change kind %q for detail %d", detail.Kind, detail.ID)
	}

	return nil
}

func findBatch(db *gorm.DB, batchID string, status string) (*ExportBatch, error) {
	var batch ExportBatch
	if err := db.Where("id = ?", batchID).Take(&batch).Error; err != nil {
		return nil, fmt.Errorf("failed to find batch %s: %w", batchID, err)
	}

	if batch.Status != status {
		return nil, fmt.Errorf("batch %s is %s, expected %s", batchID, batch.Status, status)
	}

	return &batch, nil
}
