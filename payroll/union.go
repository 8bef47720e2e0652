package payroll

import (
	"jiaming2012/labor-export/models"
)

// ApplyUnionOverride zeroes the rate of employees without a union code. A nil map is a
// precondition violation, not an employee without a code.
func ApplyUnionOverride(e models.RawEntry, unions *models.UnionCodeMap) (models.RawEntry, error) {
	if unions == nil {
		return e, &models.ConfigurationError{Reason: "union code map was not loaded"}
	}

	if !unions.HasUnion(e.EmployeeID) {
		e.EffectiveRate = 0
	}

	return e, nil
}
