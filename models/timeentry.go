package models

import (
	"fmt"
	"math"
	"strings"
)

// RawEntry is one time-tracking line for a single employee, day and pay code.
// Hours and TransitHours are signed; a retraction carries negated values.
type RawEntry struct {
	EmployeeID       string  `csv:"employee_id"`
	AssignmentID     string  `csv:"assignment_id"`
	WorkDate         Date    `csv:"work_date"`
	PayCode          string  `csv:"pay_code"`
	Hours            float64 `csv:"hours"`
	TransitHours     float64 `csv:"transit_hours"`
	EffectiveRate    float64 `csv:"rate"`
	JobCode          string  `csv:"job_code"`
	FieldWorkOrderID string  `csv:"fwo"`
}

func (e RawEntry) Key() CompositeKey {
	return CompositeKey{
		EmployeeID:       e.EmployeeID,
		WorkDate:         e.WorkDate.String(),
		FieldWorkOrderID: e.FieldWorkOrderID,
		PayCode:          e.PayCode,
		Rate:             e.EffectiveRate,
		JobCode:          e.JobCode,
	}
}

// Negate returns the retraction of e. Rates are not signed.
func (e RawEntry) Negate() RawEntry {
	e.Hours = -e.Hours
	e.TransitHours = -e.TransitHours
	return e
}

// NetHours is the worked time excluding transit.
func (e RawEntry) NetHours() float64 {
	return e.Hours - e.TransitHours
}

// SameValues reports whether two entries would export identically.
func (e RawEntry) SameValues(other RawEntry) bool {
	return e.Key() == other.Key() &&
		e.AssignmentID == other.AssignmentID &&
		e.Hours == other.Hours &&
		e.TransitHours == other.TransitHours
}

func (e RawEntry) Validate() error {
	switch {
	case strings.TrimSpace(e.EmployeeID) == "":
		return fmt.Errorf("missing employee id")
	case e.WorkDate.IsZero():
		return fmt.Errorf("missing work date for employee %s", e.EmployeeID)
	case strings.TrimSpace(e.PayCode) == "":
		return fmt.Errorf("missing pay code for employee %s on %s", e.EmployeeID, e.WorkDate)
	}

	numbers := []struct {
		name  string
		value float64
	}{
		{"hours", e.Hours},
		{"transit hours", e.TransitHours},
		{"rate", e.EffectiveRate},
	}

	for _, n := range numbers {
		if math.IsNaN(n.value) || math.IsInf(n.value, 0) {
			return fmt.Errorf("invalid %s %v for employee %s on %s", n.name, n.value, e.EmployeeID, e.WorkDate)
		}
	}

	return nil
}

type ChangeKind string

const (
	ChangeAdd     ChangeKind = "add"
	ChangeRetract ChangeKind = "retract"
)

// BatchEntry is a RawEntry as delivered in a computed batch.
type BatchEntry struct {
	DetailID    uint
	TimeEntryID uint
	Kind        ChangeKind
	RawEntry
}
