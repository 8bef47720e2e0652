package external

import (
	"context"
	"time"

	"jiaming2012/labor-export/models"
)

// StaticReference serves fixed reference data, as loaded from files for a replay.
type StaticReference struct {
	PayCodes  []string
	Employees []models.EmployeeUnion
}

func (s StaticReference) GetPoliciesInSet(ctx context.Context, setType, setName string, asOf time.Time) (models.PayCodeSet, error) {
	return models.NewPayCodeSet(s.PayCodes...), nil
}

func (s StaticReference) GetAllEmployees(ctx context.Context, filter string, asOf time.Time) ([]models.EmployeeUnion, error) {
	return s.Employees, nil
}
