package diff

import (
	"sort"

	"jiaming2012/labor-export/models"
)

// SourceEntry is a time entry as currently held by the source of record. Live is false
// for entries that were unapproved or deleted.
type SourceEntry struct {
	ID   uint
	Live bool
	models.RawEntry
}

type Input struct {
	Candidates    []SourceEntry
	Exported      map[uint]models.RawEntry
	Terminated    map[string]bool
	Negate        bool
	RetractOnTerm bool
}

type Change struct {
	TimeEntryID uint
	Kind        models.ChangeKind
	Entry       models.RawEntry
}

// Compute classifies candidates against the last exported values. A changed entry
// yields its retraction immediately followed by the new values.
func Compute(in Input) []Change {
	var changes []Change

	retract := func(id uint, prior models.RawEntry) {
		if in.Negate {
			prior = prior.Negate()
		}
		changes = append(changes, Change{TimeEntryID: id, Kind: models.ChangeRetract, Entry: prior})
	}

	retracted := make(map[uint]bool)
	if in.RetractOnTerm && len(in.Terminated) > 0 {
		ids := make([]uint, 0)
		for id, prior := range in.Exported {
			if in.Terminated[prior.EmployeeID] {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, id := range ids {
			retract(id, in.Exported[id])
			retracted[id] = true
		}
	}

	seen := make(map[uint]bool, len(in.Candidates))
	for _, c := range in.Candidates {
		if seen[c.ID] || retracted[c.ID] {
			continue
		}
		seen[c.ID] = true

		if in.RetractOnTerm && in.Terminated[c.EmployeeID] {
			continue
		}

		prior, exported := in.Exported[c.ID]

		switch {
		case !c.Live && exported:
			retract(c.ID, prior)
		case !c.Live:
			// never exported, nothing to back out
		case !exported:
			changes = append(changes, Change{TimeEntryID: c.ID, Kind: models.ChangeAdd, Entry: c.RawEntry})
		case prior.SameValues(c.RawEntry):
			// touched but unchanged
		default:
			retract(c.ID, prior)
			changes = append(changes, Change{TimeEntryID: c.ID, Kind: models.ChangeAdd, Entry: c.RawEntry})
		}
	}

	return changes
}

// SortEntries orders entries by the given fields, keeping the relative order of
// entries that compare equal.
func SortEntries(entries []models.BatchEntry, order []OrderField) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		for _, f := range order {
			if c := compareField(a.RawEntry, b.RawEntry, f); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func compareField(a, b models.RawEntry, f OrderField) int {
	switch f {
	case OrderEmployee:
		return compareStrings(a.EmployeeID, b.EmployeeID)
	case OrderAssignment:
		return compareStrings(a.AssignmentID, b.AssignmentID)
	case OrderWorkDate:
		return compareStrings(a.WorkDate.String(), b.WorkDate.String())
	case OrderPayCode:
		return compareStrings(a.PayCode, b.PayCode)
	case OrderJobCode:
		return compareStrings(a.JobCode, b.JobCode)
	case OrderFieldWorkOrder:
		return compareStrings(a.FieldWorkOrderID, b.FieldWorkOrderID)
	case OrderRate:
		switch {
		case a.EffectiveRate < b.EffectiveRate:
			return -1
		case a.EffectiveRate > b.EffectiveRate:
			return 1
		}
	}

	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
