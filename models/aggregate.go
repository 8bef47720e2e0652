package models

import "math"

// zeroTolerance is half the smallest exported hours increment.
const zeroTolerance = 0.005

// Aggregate is one emission unit. Rate is captured from the first entry of the group.
type Aggregate struct {
	Key               CompositeKey
	FieldWorkOrderID  string
	EmployeeID        string
	WorkDate          Date
	PayCode           string
	Rate              float64
	JobCode           string
	TransitHoursTotal float64
	NetHours          float64
	Entries           int
}

func NewAggregate(e RawEntry) *Aggregate {
	return &Aggregate{
		Key:              e.Key(),
		FieldWorkOrderID: e.FieldWorkOrderID,
		EmployeeID:       e.EmployeeID,
		WorkDate:         e.WorkDate,
		PayCode:          e.PayCode,
		Rate:             e.EffectiveRate,
		JobCode:          e.JobCode,
	}
}

func (a *Aggregate) Fold(e RawEntry) {
	a.NetHours += e.NetHours()
	a.TransitHoursTotal += e.TransitHours
	a.Entries++
}

// IsZero reports whether the aggregate has no net effect at export precision.
func (a *Aggregate) IsZero() bool {
	return math.Abs(a.NetHours) < zeroTolerance
}
