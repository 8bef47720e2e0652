package service

import (
	"fmt"
	"math"
	"time"
)

// PayPeriod describes fixed-length pay periods counted from Anchor.
type PayPeriod struct {
	Anchor time.Time
	Days   int
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// Start returns the first day of the pay period containing now.
func (p PayPeriod) Start(now time.Time) (time.Time, error) {
	if p.Days <= 0 {
		return time.Time{}, fmt.Errorf("pay period length must be positive, got %d", p.Days)
	}

	anchor := startOfDay(p.Anchor.In(now.Location()))
	today := startOfDay(now)

	elapsed := int(math.Round(today.Sub(anchor).Hours() / 24))
	offset := elapsed % p.Days
	if offset < 0 {
		offset += p.Days
	}

	return today.AddDate(0, 0, -offset), nil
}

// ExportWindow clamps a requested window to [current pay period start - lookbackMonths,
// tomorrow]. Zero requested bounds take the clamp value.
func ExportWindow(now, requestedStart, requestedEnd time.Time, period PayPeriod, lookbackMonths int) (time.Time, time.Time, error) {
	periodStart, err := period.Start(now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	earliest := periodStart.AddDate(0, -lookbackMonths, 0)
	latest := startOfDay(now).AddDate(0, 0, 1)

	start := requestedStart
	if start.IsZero() || start.Before(earliest) {
		start = earliest
	}

	end := requestedEnd
	if end.IsZero() || end.After(latest) {
		end = latest
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("empty export window %s - %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	return start, end, nil
}
