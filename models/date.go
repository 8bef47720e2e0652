package models

import (
	"fmt"
	"time"
)

const (
	exportDateLayout = "01/02/2006"
	isoDateLayout    = "2006-01-02"
)

// Date is a calendar day. Only the year, month and day of the wrapped time are meaningful.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(value string) (Date, error) {
	for _, layout := range []string{isoDateLayout, exportDateLayout} {
		t, err := time.Parse(layout, value)
		if err == nil {
			return DateOf(t), nil
		}
	}

	return Date{}, fmt.Errorf("unrecognized date format %q", value)
}

// String returns the ISO form, which also sorts chronologically.
func (d Date) String() string {
	return d.Time.Format(isoDateLayout)
}

func (d Date) ExportString() string {
	return d.Time.Format(exportDateLayout)
}

func (d Date) MarshalCSV() (string, error) {
	return d.ExportString(), nil
}

func (d *Date) UnmarshalCSV(csv string) (err error) {
	if len(csv) == 0 {
		d.Time = time.Time{}
		return nil
	}

	*d, err = ParseDate(csv)
	return err
}

// Within reports whether d falls on or between the calendar days of start and end.
func (d Date) Within(start, end time.Time) bool {
	s := DateOf(start).String()
	e := DateOf(end).String()
	v := d.String()
	return v >= s && v <= e
}
