package models

import "fmt"

// CompositeKey defines aggregation granularity. Two entries aggregate together iff
// every field is equal.
type CompositeKey struct {
	EmployeeID       string
	WorkDate         string
	FieldWorkOrderID string
	PayCode          string
	Rate             float64
	JobCode          string
}

func (k CompositeKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%.2f/%s", k.EmployeeID, k.WorkDate, k.FieldWorkOrderID, k.PayCode, k.Rate, k.JobCode)
}

// Less orders keys by employee, work date, pay code, job code, work order and rate.
func (k CompositeKey) Less(o CompositeKey) bool {
	switch {
	case k.EmployeeID != o.EmployeeID:
		return k.EmployeeID < o.EmployeeID
	case k.WorkDate != o.WorkDate:
		return k.WorkDate < o.WorkDate
	case k.PayCode != o.PayCode:
		return k.PayCode < o.PayCode
	case k.JobCode != o.JobCode:
		return k.JobCode < o.JobCode
	case k.FieldWorkOrderID != o.FieldWorkOrderID:
		return k.FieldWorkOrderID < o.FieldWorkOrderID
	default:
		return k.Rate < o.Rate
	}
}
