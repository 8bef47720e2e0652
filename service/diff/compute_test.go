package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiaming2012/labor-export/models"
)

func raw(emp string, payCode string, hours float64) models.RawEntry {
	return models.RawEntry{
		EmployeeID:       emp,
		AssignmentID:     "A-" + emp,
		WorkDate:         models.NewDate(2024, 5, 14),
		PayCode:          payCode,
		Hours:            hours,
		EffectiveRate:    40,
		JobCode:          "JC1",
		FieldWorkOrderID: "M55",
	}
}

func TestCompute(t *testing.T) {
	exported := map[uint]models.RawEntry{
		2: raw("E1", "REG", 8),
		3: raw("E1", "OT", 2),
		4: raw("E2", "REG", 6),
		9: raw("E9", "REG", 4),
	}

	changes := Compute(Input{
		Candidates: []SourceEntry{
			{ID: 1, Live: true, RawEntry: raw("E1", "REG", 3)},
			{ID: 2, Live: true, RawEntry: raw("E1", "REG", 5)},
			{ID: 3, Live: true, RawEntry: raw("E1", "OT", 2)},
			{ID: 4, Live: false, RawEntry: raw("E2", "REG", 6)},
			{ID: 5, Live: false, RawEntry: raw("E2", "REG", 1)},
			{ID: 1, Live: true, RawEntry: raw("E1", "REG", 3)},
		},
		Exported:      exported,
		Terminated:    map[string]bool{"E9": true},
		Negate:        true,
		RetractOnTerm: true,
	})

	require.Len(t, changes, 5)

	assert.Equal(t, Change{TimeEntryID: 9, Kind: models.ChangeRetract, Entry: raw("E9", "REG", -4)}, changes[0])
	assert.Equal(t, Change{TimeEntryID: 1, Kind: models.ChangeAdd, Entry: raw("E1", "REG", 3)}, changes[1])
	assert.Equal(t, Change{TimeEntryID: 2, Kind: models.ChangeRetract, Entry: raw("E1", "REG", -8)}, changes[2])
	assert.Equal(t, Change{TimeEntryID: 2, Kind: models.ChangeAdd, Entry: raw("E1", "REG", 5)}, changes[3])
	assert.Equal(t, Change{TimeEntryID: 4, Kind: models.ChangeRetract, Entry: raw("E2", "REG", -6)}, changes[4])
}

func TestCompute_WithoutNegation(t *testing.T) {
	changes := Compute(Input{
		Candidates: []SourceEntry{{ID: 1, Live: false, RawEntry: raw("E1", "REG", 8)}},
		Exported:   map[uint]models.RawEntry{1: raw("E1", "REG", 8)},
	})

	require.Len(t, changes, 1)
	assert.Equal(t, models.ChangeRetract, changes[0].Kind)
	assert.Equal(t, 8.0, changes[0].Entry.Hours)
}

func TestCompute_TerminationDisabled(t *testing.T) {
	changes := Compute(Input{
		Candidates: []SourceEntry{{ID: 2, Live: true, RawEntry: raw("E9", "REG", 1)}},
		Exported:   map[uint]models.RawEntry{1: raw("E9", "REG", 8)},
		Terminated: map[string]bool{"E9": true},
		Negate:     true,
	})

	require.Len(t, changes, 1)
	assert.Equal(t, models.ChangeAdd, changes[0].Kind)
}

func TestSortEntries(t *testing.T) {
	mk := func(id uint, emp, assignment, payCode string, rate float64) models.BatchEntry {
		e := raw(emp, payCode, 1)
		e.AssignmentID = assignment
		e.EffectiveRate = rate
		return models.BatchEntry{DetailID: id, RawEntry: e}
	}

	entries := []models.BatchEntry{
		mk(1, "E2", "A1", "REG", 40),
		mk(2, "E1", "A2", "REG", 40),
		mk(3, "E1", "A1", "REG", 45),
		mk(4, "E1", "A1", "OT", 40),
		mk(5, "E1", "A1", "REG", 40),
		mk(6, "E1", "A1", "REG", 40),
	}
	SortEntries(entries, DefaultOrder)

	var ids []uint
	for _, e := range entries {
		ids = append(ids, e.DetailID)
	}
	assert.Equal(t, []uint{4, 5, 6, 3, 2, 1}, ids)
}

func TestParsePriorPeriodMode(t *testing.T) {
	for _, s := range []string{"on-approval", "on-change", "upon-lock"} {
		m, err := ParsePriorPeriodMode(s)
		require.NoError(t, err)
		assert.Equal(t, PriorPeriodMode(s), m)
	}

	_, err := ParsePriorPeriodMode("weekly")
	assert.Error(t, err)
}

func TestMatchCondition(t *testing.T) {
	assert.True(t, MatchCondition{}.Matches("E1"))
	assert.True(t, MatchCondition{EmployeeIDs: []string{"E1"}}.Matches("E1"))
	assert.False(t, MatchCondition{EmployeeIDs: []string{"E1"}}.Matches("E2"))
}
