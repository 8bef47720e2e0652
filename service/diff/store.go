package diff

import (
	"context"
	"fmt"
	"time"

	"jiaming2012/labor-export/models"
)

type PriorPeriodMode string

const (
	OnApproval PriorPeriodMode = "on-approval"
	OnChange   PriorPeriodMode = "on-change"
	UponLock   PriorPeriodMode = "upon-lock"
)

func ParsePriorPeriodMode(s string) (PriorPeriodMode, error) {
	switch m := PriorPeriodMode(s); m {
	case OnApproval, OnChange, UponLock:
		return m, nil
	default:
		return "", fmt.Errorf("unknown prior period mode %q", s)
	}
}

// MatchCondition selects what a difference computation covers.
type MatchCondition struct {
	Target      string
	EmployeeIDs []string
}

func (c MatchCondition) Matches(employeeID string) bool {
	if len(c.EmployeeIDs) == 0 {
		return true
	}

	for _, id := range c.EmployeeIDs {
		if id == employeeID {
			return true
		}
	}

	return false
}

type Params struct {
	StartDate           time.Time
	EndDate             time.Time
	NegateNumericFields bool
	RetractOnTerm       bool
	PriorPeriodMode     PriorPeriodMode
	GraceMinutes        int
	LogData             bool
}

type OrderField string

const (
	OrderEmployee       OrderField = "employee_id"
	OrderAssignment     OrderField = "assignment_id"
	OrderWorkDate       OrderField = "work_date"
	OrderPayCode        OrderField = "pay_code"
	OrderJobCode        OrderField = "job_code"
	OrderFieldWorkOrder OrderField = "field_work_order_id"
	OrderRate           OrderField = "rate"
)

// DefaultOrder groups equal composite keys together for the aggregator.
var DefaultOrder = []OrderField{
	OrderEmployee,
	OrderAssignment,
	OrderWorkDate,
	OrderPayCode,
	OrderJobCode,
	OrderFieldWorkOrder,
	OrderRate,
}

// Store is the time-tracking difference engine. A batch is in progress from
// ComputeDifferences until CommitExport or RollbackExport.
type Store interface {
	ComputeDifferences(ctx context.Context, cond MatchCondition, params Params) (string, error)
	GetExportDetails(ctx context.Context, batchID string, order []OrderField) ([]models.BatchEntry, error)
	RollbackRecord(ctx context.Context, batchID string, entry models.BatchEntry) error
	RollbackExport(ctx context.Context, batchID string) error
	CommitExport(ctx context.Context, batchID string) error
}

// Cutoff is the change time from which entries are reconsidered: the last watermark
// minus the grace period, or the beginning of time before the first run.
func Cutoff(watermark time.Time, found bool, graceMinutes int) time.Time {
	if !found {
		return time.Time{}
	}

	return watermark.Add(-time.Duration(graceMinutes) * time.Minute)
}
