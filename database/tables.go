package database

import (
	"time"

	"gorm.io/gorm"

	"jiaming2012/labor-export/models"
)

// EntryValues are the exported fields of a time entry, embedded wherever a snapshot of
// them is kept.
type EntryValues struct {
	EmployeeID       string    `gorm:"index;not null"`
	AssignmentID     string    `gorm:"index;not null"`
	WorkDate         time.Time `gorm:"type:date;index;not null"`
	PayCode          string    `gorm:"not null"`
	Hours            float64
	TransitHours     float64
	Rate             float64
	JobCode          string
	FieldWorkOrderID string
}

func (v EntryValues) RawEntry() models.RawEntry {
	return models.RawEntry{
		EmployeeID:       v.EmployeeID,
		AssignmentID:     v.AssignmentID,
		WorkDate:         models.DateOf(v.WorkDate),
		PayCode:          v.PayCode,
		Hours:            v.Hours,
		TransitHours:     v.TransitHours,
		EffectiveRate:    v.Rate,
		JobCode:          v.JobCode,
		FieldWorkOrderID: v.FieldWorkOrderID,
	}
}

func NewEntryValues(e models.RawEntry) EntryValues {
	return EntryValues{
		EmployeeID:       e.EmployeeID,
		AssignmentID:     e.AssignmentID,
		WorkDate:         e.WorkDate.Time,
		PayCode:          e.PayCode,
		Hours:            e.Hours,
		TransitHours:     e.TransitHours,
		Rate:             e.EffectiveRate,
		JobCode:          e.JobCode,
		FieldWorkOrderID: e.FieldWorkOrderID,
	}
}

// TimeEntry is the source-of-record line item.
type TimeEntry struct {
	ID uint `gorm:"primaryKey"`

	EntryValues `gorm:"embedded"`

	Approved   bool `gorm:"not null;default:false"`
	ApprovedAt *time.Time
	LockedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time      `gorm:"index"`
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

type Assignment struct {
	ID         string     `gorm:"primaryKey"`
	EmployeeID string     `gorm:"index;not null"`
	StartDate  time.Time  `gorm:"type:date;not null"`
	EndDate    *time.Time `gorm:"type:date"`
}

type Employee struct {
	ID           string `gorm:"primaryKey"`
	TerminatedAt *time.Time
}

// ExportLedger holds the last exported values of a time entry per target.
type ExportLedger struct {
	ID          uint   `gorm:"primaryKey"`
	Target      string `gorm:"uniqueIndex:idx_ledger_target_entry;not null"`
	TimeEntryID uint   `gorm:"uniqueIndex:idx_ledger_target_entry;not null"`

	EntryValues `gorm:"embedded"`

	Retracted bool `gorm:"not null;default:false"`
	BatchID   string
	UpdatedAt time.Time
}

type ExportBatch struct {
	ID          string `gorm:"primaryKey"`
	Target      string `gorm:"index;not null"`
	Status      string `gorm:"not null"`
	WindowStart time.Time
	WindowEnd   time.Time
	Since       time.Time
	AsOf        time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type BatchDetail struct {
	ID          uint   `gorm:"primaryKey"`
	BatchID     string `gorm:"index;not null"`
	TimeEntryID uint   `gorm:"not null"`
	Kind        string `gorm:"not null"`

	EntryValues `gorm:"embedded"`

	RolledBack bool `gorm:"not null;default:false"`
}

func (d BatchDetail) BatchEntry() models.BatchEntry {
	return models.BatchEntry{
		DetailID:    d.ID,
		TimeEntryID: d.TimeEntryID,
		Kind:        models.ChangeKind(d.Kind),
		RawEntry:    d.EntryValues.RawEntry(),
	}
}

// PendingEntry is a time entry rolled back by an earlier run. It is reconsidered
// regardless of its change time.
type PendingEntry struct {
	Target      string `gorm:"primaryKey"`
	TimeEntryID uint   `gorm:"primaryKey"`
	BatchID     string
	CreatedAt   time.Time
}

type Watermark struct {
	Target    string `gorm:"primaryKey"`
	AsOf      time.Time
	BatchID   string
	UpdatedAt time.Time
}
