package payroll

import (
	"fmt"
	"strings"

	"jiaming2012/labor-export/models"
)

var DefaultWorkOrderPrefixes = []string{"M", "F"}

// Accept reports whether e belongs in the export: its pay code must be in payCodes and
// the first character of its field work order id must match one of prefixes,
// case-insensitively.
func Accept(e models.RawEntry, payCodes models.PayCodeSet, prefixes []string) bool {
	ok, _ := Check(e, payCodes, prefixes)
	return ok
}

// Check is Accept with the rejection reason.
func Check(e models.RawEntry, payCodes models.PayCodeSet, prefixes []string) (bool, string) {
	if !payCodes.Contains(e.PayCode) {
		return false, fmt.Sprintf("pay code %s not exported", e.PayCode)
	}

	if e.FieldWorkOrderID == "" {
		return false, "missing field work order"
	}

	first := e.FieldWorkOrderID[:1]
	for _, p := range prefixes {
		if strings.EqualFold(first, p) {
			return true, ""
		}
	}

	return false, fmt.Sprintf("field work order %s has no exported prefix", e.FieldWorkOrderID)
}
