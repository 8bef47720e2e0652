package payroll

import (
	"jiaming2012/labor-export/models"
)

const CompensatingPayCode = "WORKED_ALLOCATED_REG"

// RateRules encodes which pay codes double their rate. Hours booked to a double-rate
// code are also taken back out of the regular worked bucket through a compensating
// entry so that total paid hours are counted once.
type RateRules struct {
	doubleRate   models.PayCodeSet
	compensating string
}

func NewRateRules(doubleRate models.PayCodeSet, compensatingPayCode string) RateRules {
	if compensatingPayCode == "" {
		compensatingPayCode = CompensatingPayCode
	}

	return RateRules{
		doubleRate:   doubleRate,
		compensating: compensatingPayCode,
	}
}

func (r RateRules) IsDoubleRate(payCode string) bool {
	return r.doubleRate.Contains(payCode)
}

func (r RateRules) CompensatingPayCode() string {
	return r.compensating
}

// Adjust returns the entry at its payable rate and, for double-rate codes, the
// compensating entry. The compensating entry keeps the base rate.
func (r RateRules) Adjust(e models.RawEntry) (primary models.RawEntry, compensating *models.RawEntry) {
	primary = e
	if !r.IsDoubleRate(e.PayCode) {
		return primary, nil
	}

	primary.EffectiveRate = 2 * e.EffectiveRate

	c := e
	c.PayCode = r.compensating
	c.Hours = -(e.Hours - e.TransitHours)
	c.TransitHours = -e.TransitHours

	return primary, &c
}
