package export

import (
	"math"
	"strconv"

	"jiaming2012/labor-export/models"
)

// Columns is the fixed field order of the maintenance system import.
var Columns = []string{"HOURS", "FWO", "EMPLID", "WORK_DATE", "PAY_CODE", "RATE", "JOB_CODE", "TRANSIT_HOURS"}

// Amount is written with exactly two decimals.
type Amount float64

func (a Amount) MarshalCSV() (string, error) {
	return strconv.FormatFloat(float64(a), 'f', 2, 64), nil
}

// Quantity is written in its shortest form after rounding to two decimals.
type Quantity float64

func (q Quantity) MarshalCSV() (string, error) {
	v := math.Round(float64(q)*100) / 100
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64), nil
}

type Row struct {
	Hours        Amount      `csv:"HOURS"`
	FWO          string      `csv:"FWO"`
	EmployeeID   string      `csv:"EMPLID"`
	WorkDate     models.Date `csv:"WORK_DATE"`
	PayCode      string      `csv:"PAY_CODE"`
	Rate         Amount      `csv:"RATE"`
	JobCode      string      `csv:"JOB_CODE"`
	TransitHours Quantity    `csv:"TRANSIT_HOURS"`
}

func NewRow(a models.Aggregate) Row {
	return Row{
		Hours:        Amount(a.NetHours),
		FWO:          a.FieldWorkOrderID,
		EmployeeID:   a.EmployeeID,
		WorkDate:     a.WorkDate,
		PayCode:      a.PayCode,
		Rate:         Amount(a.Rate),
		JobCode:      a.JobCode,
		TransitHours: Quantity(a.TransitHoursTotal),
	}
}
