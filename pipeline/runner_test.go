package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiaming2012/labor-export/models"
	"jiaming2012/labor-export/payroll"
	"jiaming2012/labor-export/service"
	"jiaming2012/labor-export/service/diff"
)

const target = "MAINTENANCE_HOURS"

type fakeReference struct {
	payCodes  []string
	employees []models.EmployeeUnion
	err       error
}

func (f *fakeReference) GetPoliciesInSet(context.Context, string, string, time.Time) (models.PayCodeSet, error) {
	if f.err != nil {
		return models.PayCodeSet{}, f.err
	}
	return models.NewPayCodeSet(f.payCodes...), nil
}

func (f *fakeReference) GetAllEmployees(context.Context, string, time.Time) ([]models.EmployeeUnion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.employees, nil
}

type fakeUploader struct {
	uploaded []string
	err      error
}

func (u *fakeUploader) Upload(localPath string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.uploaded = append(u.uploaded, localPath)
	return "/inbound/" + filepath.Base(localPath), nil
}

type cancellingStore struct {
	*diff.MemoryStore
	cancel context.CancelFunc
}

func (s cancellingStore) GetExportDetails(ctx context.Context, batchID string, order []diff.OrderField) ([]models.BatchEntry, error) {
	entries, err := s.MemoryStore.GetExportDetails(ctx, batchID, order)
	s.cancel()
	return entries, err
}

// cancelAfter reports cancellation once Err has been consulted more than limit times.
type cancelAfter struct {
	context.Context
	calls int
	limit int
}

func (c *cancelAfter) Err() error {
	c.calls++
	if c.calls > c.limit {
		return context.Canceled
	}
	return nil
}

type fixture struct {
	now       time.Time
	store     *diff.MemoryStore
	engine    *diff.Engine
	reference *fakeReference
	cfg       Config
}

func newFixture(t *testing.T, entries ...diff.MemoryEntry) *fixture {
	f := &fixture{
		now:   time.Date(2024, time.January, 3, 10, 0, 0, 0, time.UTC),
		store: diff.NewMemoryStore(entries),
		reference: &fakeReference{
			payCodes:  []string{"REG", "DT", payroll.CompensatingPayCode},
			employees: []models.EmployeeUnion{{EmployeeID: "E1", UnionCode: "U7"}},
		},
	}
	f.store.SetClock(func() time.Time { return f.now })

	f.cfg = Config{
		Target:         target,
		OutputPath:     filepath.Join(t.TempDir(), "labor.csv"),
		PayCodeSetType: "PAY_CODE",
		PayCodeSetName: "MAINTENANCE_EXPORT",
		EmployeeFilter: "active",
		Prefixes:       []string{"M", "F"},
		Rules:          payroll.NewRateRules(models.NewPayCodeSet("DT"), ""),
	}

	return f
}

func (f *fixture) runner(store diff.Store, uploader Uploader) *Runner {
	f.engine = diff.NewEngine(store, diff.EngineConfig{
		Target:         target,
		PayPeriod:      service.PayPeriod{Anchor: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), Days: 14},
		LookbackMonths: 3,
		RetractOnTerm:  true,
	})
	f.engine.SetClock(func() time.Time { return f.now })

	r := NewRunner(f.cfg, f.engine, f.reference, uploader)
	r.SetClock(func() time.Time { return f.now })
	return r
}

func (f *fixture) run(t *testing.T) Summary {
	t.Helper()
	summary, err := f.runner(f.store, nil).Run(context.Background())
	require.NoError(t, err)
	return summary
}

func timeEntry(id uint, emp string, payCode string, hours float64) diff.MemoryEntry {
	return diff.MemoryEntry{
		ID:        id,
		Approved:  true,
		ChangedAt: time.Date(2024, time.January, 2, 18, 0, 0, 0, time.UTC),
		RawEntry: models.RawEntry{
			EmployeeID:       emp,
			AssignmentID:     "A-" + emp,
			WorkDate:         models.NewDate(2024, time.January, 2),
			PayCode:          payCode,
			Hours:            hours,
			EffectiveRate:    40,
			JobCode:          "JC1",
			FieldWorkOrderID: "M55",
		},
	}
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	for _, p := range []string{path, path + ".partial"} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), p)
	}
}

func TestRunner_Correction(t *testing.T) {
	f := newFixture(t, timeEntry(1, "E1", "REG", 8), timeEntry(2, "E1", "REG", -3))

	summary := f.run(t)
	assert.Equal(t, "5.00,M55,E1,01/02/2024,REG,40.00,JC1,0\n", read(t, f.cfg.OutputPath))
	assert.Equal(t, 2, summary.Entries)
	assert.Equal(t, 2, summary.Accepted)
	assert.Equal(t, 1, summary.Emitted)
	assert.False(t, summary.Cancelled)

	watermark, found := f.store.Watermark(target)
	require.True(t, found)
	assert.Equal(t, f.now, watermark)
	assert.Len(t, f.store.Exported(target), 2)
}

func TestRunner_IncrementalEdit(t *testing.T) {
	f := newFixture(t, timeEntry(1, "E1", "REG", 8))
	f.run(t)
	assert.Equal(t, "8.00,M55,E1,01/02/2024,REG,40.00,JC1,0\n", read(t, f.cfg.OutputPath))

	f.now = f.now.Add(time.Hour)
	edited := timeEntry(1, "E1", "REG", 5)
	edited.ChangedAt = f.now.Add(-time.Minute)
	f.store.Upsert(edited)

	summary := f.run(t)
	assert.Equal(t, "-3.00,M55,E1,01/02/2024,REG,40.00,JC1,0\n", read(t, f.cfg.OutputPath))
	assert.Equal(t, 2, summary.Entries, "retraction and replacement")

	f.now = f.now.Add(time.Hour)
	summary = f.run(t)
	assert.Equal(t, 0, summary.Entries)
	assert.Empty(t, read(t, f.cfg.OutputPath))
}

func TestRunner_ZeroSumSuppressed(t *testing.T) {
	f := newFixture(t, timeEntry(1, "E1", "REG", 8), timeEntry(2, "E1", "REG", -8))

	summary := f.run(t)
	assert.Empty(t, read(t, f.cfg.OutputPath))
	assert.Equal(t, 1, summary.Suppressed)
	assert.Equal(t, 0, summary.Emitted)
}

func TestRunner_DoubleRateCompensation(t *testing.T) {
	f := newFixture(t, timeEntry(1, "E1", "DT", 8))

	summary := f.run(t)
	assert.Equal(t,
		"8.00,M55,E1,01/02/2024,DT,80.00,JC1,0\n"+
			"-8.00,M55,E1,01/02/2024,WORKED_ALLOCATED_REG,40.00,JC1,0\n",
		read(t, f.cfg.OutputPath))
	assert.Equal(t, 1, summary.Compensating)
	assert.Equal(t, 2, summary.Emitted)
}

func TestRunner_CompensatingCodeNotExported(t *testing.T) {
	f := newFixture(t, timeEntry(1, "E1", "DT", 8))
	f.reference.payCodes = []string{"REG", "DT"}

	summary := f.run(t)
	assert.Equal(t, "8.00,M55,E1,01/02/2024,DT,80.00,JC1,0\n", read(t, f.cfg.OutputPath))
	assert.Equal(t, 0, summary.Compensating)
	assert.Equal(t, 1, summary.CompensatingDropped)
}

func TestRunner_UnionOverrideAndFilter(t *testing.T) {
	outsider := timeEntry(3, "E2", "REG", 4)
	otherWorkOrder := timeEntry(4, "E1", "REG", 2)
	otherWorkOrder.FieldWorkOrderID = "X123"

	f := newFixture(t, timeEntry(1, "E1", "VAC", 8), outsider, otherWorkOrder)

	summary := f.run(t)
	assert.Equal(t, "4.00,M55,E2,01/02/2024,REG,0.00,JC1,0\n", read(t, f.cfg.OutputPath))
	assert.Equal(t, 2, summary.Filtered)
	assert.Equal(t, 1, summary.Accepted)
	assert.Len(t, f.store.Exported(target), 3, "filtered entries are still recorded as exported")
}

func TestRunner_RecordFailureContinues(t *testing.T) {
	broken := timeEntry(2, "E1", "", 3)
	f := newFixture(t, timeEntry(1, "E1", "REG", 8), broken)

	summary := f.run(t)
	assert.Equal(t, "8.00,M55,E1,01/02/2024,REG,40.00,JC1,0\n", read(t, f.cfg.OutputPath))
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.RolledBack)
	require.Len(t, summary.Rejections, 1)
	assert.Equal(t, []uint{2}, f.store.Pending(target))
	assert.NotContains(t, f.store.Exported(target), uint(2))
}

func TestRunner_ReferenceDataFailure(t *testing.T) {
	f := newFixture(t, timeEntry(1, "E1", "REG", 8))
	f.reference.err = errors.New("service unavailable")

	_, err := f.runner(f.store, nil).Run(context.Background())
	assert.ErrorContains(t, err, "service unavailable")
	var cfgErr *models.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	assertMissing(t, f.cfg.OutputPath)

	_, found := f.store.Watermark(target)
	assert.False(t, found)
}

func TestRunner_FatalErrorRollsBack(t *testing.T) {
	f := newFixture(t, timeEntry(1, "E1", "REG", 8), timeEntry(2, "E1", "DT", 8))
	f.cfg.Rules = payroll.NewRateRules(models.NewPayCodeSet("DT", payroll.CompensatingPayCode), "")

	_, err := f.runner(f.store, nil).Run(context.Background())
	var cfgErr *models.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))

	assertMissing(t, f.cfg.OutputPath)
	_, found := f.store.Watermark(target)
	assert.False(t, found)
	assert.Empty(t, f.store.Exported(target))

	f.cfg.Rules = payroll.NewRateRules(models.NewPayCodeSet("DT"), "")
	f.now = f.now.Add(time.Hour)
	summary := f.run(t)
	assert.Equal(t, 2, summary.Entries, "rolled back batch is recomputed")
}

func TestRunner_Delivery(t *testing.T) {
	f := newFixture(t, timeEntry(1, "E1", "REG", 8))
	uploader := &fakeUploader{}

	summary, err := f.runner(f.store, uploader).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{f.cfg.OutputPath}, uploader.uploaded)
	assert.Equal(t, "/inbound/labor.csv", summary.RemotePath)
}

func TestRunner_DeliveryFailure(t *testing.T) {
	f := newFixture(t, timeEntry(1, "E1", "REG", 8))

	_, err := f.runner(f.store, &fakeUploader{err: errors.New("connection reset")}).Run(context.Background())
	var deliveryErr *models.DeliveryError
	require.True(t, errors.As(err, &deliveryErr))

	assertMissing(t, f.cfg.OutputPath)
	_, found := f.store.Watermark(target)
	assert.False(t, found)
}

func TestRunner_Cancellation(t *testing.T) {
	f := newFixture(t, timeEntry(1, "E1", "REG", 8), timeEntry(2, "E2", "REG", 4))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	summary, err := f.runner(cancellingStore{MemoryStore: f.store, cancel: cancel}, nil).Run(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 2, summary.RolledBack)
	assert.Empty(t, read(t, f.cfg.OutputPath))
	assert.Equal(t, []uint{1, 2}, f.store.Pending(target))

	f.now = f.now.Add(time.Hour)
	summary = f.run(t)
	assert.Equal(t, 2, summary.Accepted)
	assert.Empty(t, f.store.Pending(target))
}

func TestRunner_StrictOrdering(t *testing.T) {
	f := newFixture(t, timeEntry(1, "E1", "DT", 8), timeEntry(2, "E1", "DT", 2))
	f.cfg.StrictOrdering = true

	summary := f.run(t)
	assert.Equal(t,
		"10.00,M55,E1,01/02/2024,DT,80.00,JC1,0\n"+
			"-10.00,M55,E1,01/02/2024,WORKED_ALLOCATED_REG,40.00,JC1,0\n",
		read(t, f.cfg.OutputPath))
	assert.Equal(t, 2, summary.Compensating)
}

func TestRunner_CancellationKeepsChangePairTogether(t *testing.T) {
	f := newFixture(t, timeEntry(1, "E1", "REG", 8))
	f.reference.payCodes = []string{"REG", "OT"}
	f.run(t)

	f.now = f.now.Add(time.Hour)
	changed := timeEntry(1, "E1", "OT", 8)
	changed.ChangedAt = f.now.Add(-time.Minute)
	f.store.Upsert(changed)
	added := timeEntry(3, "E2", "REG", 4)
	added.ChangedAt = f.now.Add(-time.Minute)
	f.store.Upsert(added)

	// one check while computing the batch, one before the OT add; cancelled from the
	// REG retraction on
	ctx := &cancelAfter{Context: context.Background(), limit: 2}

	summary, err := f.runner(f.store, nil).Run(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
	assert.Equal(t, 3, summary.Entries)
	assert.Equal(t, 2, summary.Accepted, "the retraction of a started time entry still runs")
	assert.Equal(t, 1, summary.RolledBack)
	assert.Equal(t, "8.00,M55,E1,01/02/2024,OT,40.00,JC1,0\n-8.00,M55,E1,01/02/2024,REG,40.00,JC1,0\n", read(t, f.cfg.OutputPath))

	assert.Equal(t, "OT", f.store.Exported(target)[1].PayCode)
	assert.Equal(t, []uint{3}, f.store.Pending(target))
}

func TestRunner_UnquotableFieldRejected(t *testing.T) {
	quoted := timeEntry(2, "E1", "REG", 3)
	quoted.JobCode = `J"1`
	f := newFixture(t, timeEntry(1, "E1", "REG", 8), quoted)

	summary := f.run(t)
	assert.Equal(t, "8.00,M55,E1,01/02/2024,REG,40.00,JC1,0\n", read(t, f.cfg.OutputPath))
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Rejections, 1)
	assert.ErrorContains(t, summary.Rejections[0], "job code")
	assert.Equal(t, []uint{2}, f.store.Pending(target))
}
