package export

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiaming2012/labor-export/models"
)

func aggregate(hours, transit, rate float64) models.Aggregate {
	return models.Aggregate{
		FieldWorkOrderID:  "M55",
		EmployeeID:        "E1",
		WorkDate:          models.NewDate(2024, 1, 2),
		PayCode:           "REG",
		Rate:              rate,
		JobCode:           "JC1",
		TransitHoursTotal: transit,
		NetHours:          hours,
	}
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestWriter_DefaultFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "labor.csv")

	w, err := Create(path, Options{})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Emit(aggregate(5, 0, 40)))
	require.NoError(t, w.Emit(aggregate(-2.5, 0.25, 0)))
	require.NoError(t, w.Finish())

	assert.Equal(t, "5.00,M55,E1,01/02/2024,REG,40.00,JC1,0\n-2.50,M55,E1,01/02/2024,REG,0.00,JC1,0.25\n", read(t, path))
	assert.Equal(t, 2, w.Rows())

	_, err = os.Stat(path + ".partial")
	assert.True(t, os.IsNotExist(err))
}

func TestWriter_HeaderAndDelimiter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labor.txt")

	w, err := Create(path, Options{Delimiter: "|", IncludeHeader: true})
	require.NoError(t, err)
	require.NoError(t, w.Emit(aggregate(8, 1, 32.5)))
	require.NoError(t, w.Finish())
	w.Close()

	assert.Equal(t, "HOURS|FWO|EMPLID|WORK_DATE|PAY_CODE|RATE|JOB_CODE|TRANSIT_HOURS\n8.00|M55|E1|01/02/2024|REG|32.50|JC1|1\n", read(t, path))
}

func TestWriter_CloseWithoutFinishDiscards(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labor.csv")

	w, err := Create(path, Options{})
	require.NoError(t, err)
	require.NoError(t, w.Emit(aggregate(5, 0, 40)))
	w.Close()
	w.Close()

	for _, p := range []string{path, path + ".partial"} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), p)
	}

	assert.Error(t, w.Emit(aggregate(1, 0, 40)))
}

func TestWriter_Discard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labor.csv")

	w, err := Create(path, Options{})
	require.NoError(t, err)
	require.NoError(t, w.Finish())
	w.Discard()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestWriter_InvalidDelimiter(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "labor.csv"), Options{Delimiter: ";;"})

	var cfgErr *models.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestQuantity(t *testing.T) {
	tests := []struct {
		in       float64
		expected string
	}{
		{0, "0"},
		{-0.001, "0"},
		{0.1 + 0.2, "0.3"},
		{1.5, "1.5"},
		{-2, "-2"},
	}

	for _, tt := range tests {
		got, err := Quantity(tt.in).MarshalCSV()
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got)
	}
}

func TestWriter_FieldsAreNeverQuoted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labor.csv")

	w, err := Create(path, Options{Delimiter: "|"})
	require.NoError(t, err)
	defer w.Close()

	a := aggregate(8, 0, 40)
	a.JobCode = "J 1,A"
	require.NoError(t, w.Emit(a))

	quoted := aggregate(8, 0, 40)
	quoted.JobCode = `J"1`
	assert.Error(t, w.Emit(quoted))
	assert.Equal(t, 1, w.Rows())

	require.NoError(t, w.Finish())
	assert.Equal(t, "8.00|M55|E1|01/02/2024|REG|40.00|J 1,A|0\n", read(t, path))
}

func TestWriter_Check(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "labor.csv"), Options{})
	require.NoError(t, err)
	defer w.Close()

	entry := models.RawEntry{EmployeeID: "E1", PayCode: "REG", JobCode: "JC1", FieldWorkOrderID: "M55"}
	assert.NoError(t, w.Check(entry))

	tests := []struct {
		name  string
		apply func(e *models.RawEntry)
	}{
		{"quote in job code", func(e *models.RawEntry) { e.JobCode = `J"1` }},
		{"delimiter in work order", func(e *models.RawEntry) { e.FieldWorkOrderID = "M5,5" }},
		{"line feed in employee", func(e *models.RawEntry) { e.EmployeeID = "E\n1" }},
		{"carriage return in pay code", func(e *models.RawEntry) { e.PayCode = "REG\r" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := entry
			tt.apply(&e)
			assert.Error(t, w.Check(e))
		})
	}
}

func TestWriter_QuoteDelimiterRejected(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "labor.csv"), Options{Delimiter: `"`})

	var cfgErr *models.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}
