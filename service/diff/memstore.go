package diff

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"jiaming2012/labor-export/models"
)

type batchStatus string

const (
	batchInProgress batchStatus = "in_progress"
	batchCommitted  batchStatus = "committed"
	batchRolledBack batchStatus = "rolled_back"
)

// MemoryEntry is a time entry held by MemoryStore. ChangedAt is used for every prior
// period mode.
type MemoryEntry struct {
	ID                 uint
	Approved           bool
	Deleted            bool
	InactiveAssignment bool
	ChangedAt          time.Time
	models.RawEntry
}

type memDetail struct {
	entry      models.BatchEntry
	rolledBack bool
}

type memBatch struct {
	target  string
	status  batchStatus
	asOf    time.Time
	details []*memDetail
}

// MemoryStore is a Store over in-process data. Used for replays and tests.
type MemoryStore struct {
	mu         sync.Mutex
	entries    []MemoryEntry
	terminated map[string]bool
	ledger     map[string]map[uint]models.RawEntry
	pending    map[string]map[uint]bool
	watermarks map[string]time.Time
	batches    map[string]*memBatch
	now        func() time.Time
}

func NewMemoryStore(entries []MemoryEntry) *MemoryStore {
	return &MemoryStore{
		entries:    entries,
		terminated: make(map[string]bool),
		ledger:     make(map[string]map[uint]models.RawEntry),
		pending:    make(map[string]map[uint]bool),
		watermarks: make(map[string]time.Time),
		batches:    make(map[string]*memBatch),
		now:        time.Now,
	}
}

func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Upsert replaces the entry with the same id or appends it.
func (s *MemoryStore) Upsert(e MemoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ID == e.ID {
			s.entries[i] = e
			return
		}
	}
	s.entries = append(s.entries, e)
}

func (s *MemoryStore) Terminate(employeeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated[employeeID] = true
}

func (s *MemoryStore) Watermark(target string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, found := s.watermarks[target]
	return w, found
}

// Exported returns the unretracted ledger values for target.
func (s *MemoryStore) Exported(target string) map[uint]models.RawEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[uint]models.RawEntry, len(s.ledger[target]))
	for id, e := range s.ledger[target] {
		out[id] = e
	}
	return out
}

func (s *MemoryStore) Pending(target string) []uint {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uint, 0, len(s.pending[target]))
	for id := range s.pending[target] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *MemoryStore) ComputeDifferences(ctx context.Context, cond MatchCondition, params Params) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	asOf := s.now()
	watermark, found := s.watermarks[cond.Target]
	cutoff := Cutoff(watermark, found, params.GraceMinutes)

	var candidates []SourceEntry
	for _, e := range s.entries {
		if !cond.Matches(e.EmployeeID) || e.InactiveAssignment {
			continue
		}
		if !e.WorkDate.Within(params.StartDate, params.EndDate) {
			continue
		}
		if e.ChangedAt.Before(cutoff) && !s.pending[cond.Target][e.ID] {
			continue
		}
		if e.ChangedAt.After(asOf) {
			continue
		}

		candidates = append(candidates, SourceEntry{ID: e.ID, Live: e.Approved && !e.Deleted, RawEntry: e.RawEntry})
	}

	terminated := make(map[string]bool)
	for id := range s.terminated {
		if cond.Matches(id) {
			terminated[id] = true
		}
	}

	changes := Compute(Input{
		Candidates:    candidates,
		Exported:      s.ledger[cond.Target],
		Terminated:    terminated,
		Negate:        params.NegateNumericFields,
		RetractOnTerm: params.RetractOnTerm,
	})

	batchID := uuid.New().String()
	b := &memBatch{target: cond.Target, status: batchInProgress, asOf: asOf}
	for i, c := range changes {
		b.details = append(b.details, &memDetail{entry: models.BatchEntry{
			DetailID:    uint(i + 1),
			TimeEntryID: c.TimeEntryID,
			Kind:        c.Kind,
			RawEntry:    c.Entry,
		}})

		if params.LogData {
			log.WithField("batch", batchID).Debugf("%s entry %d: %+v", c.Kind, c.TimeEntryID, c.Entry)
		}
	}
	s.batches[batchID] = b

	return batchID, nil
}

func (s *MemoryStore) GetExportDetails(ctx context.Context, batchID string, order []OrderField) ([]models.BatchEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.batch(batchID, batchInProgress)
	if err != nil {
		return nil, err
	}

	out := make([]models.BatchEntry, 0, len(b.details))
	for _, d := range b.details {
		out = append(out, d.entry)
	}
	SortEntries(out, order)

	return out, nil
}

// RollbackRecord excludes the detail and every other detail of the same time entry, so
// a retraction and its replacement are committed together or not at all.
func (s *MemoryStore) RollbackRecord(ctx context.Context, batchID string, entry models.BatchEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.batch(batchID, batchInProgress)
	if err != nil {
		return err
	}

	found := false
	for _, d := range b.details {
		if d.entry.DetailID == entry.DetailID {
			d.rolledBack = true
			found = true
		}
	}

	if !found {
		return fmt.Errorf("detail %d not found in batch %s", entry.DetailID, batchID)
	}

	if entry.TimeEntryID == 0 {
		return nil
	}

	for _, d := range b.details {
		if d.entry.TimeEntryID == entry.TimeEntryID {
			d.rolledBack = true
		}
	}
	s.markPending(b.target, entry.TimeEntryID)

	return nil
}

func (s *MemoryStore) RollbackExport(ctx context.Context, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.batch(batchID, batchInProgress)
	if err != nil {
		return err
	}

	b.status = batchRolledBack
	return nil
}

func (s *MemoryStore) CommitExport(ctx context.Context, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.batch(batchID, batchInProgress)
	if err != nil {
		return err
	}

	ledger, found := s.ledger[b.target]
	if !found {
		ledger = make(map[uint]models.RawEntry)
		s.ledger[b.target] = ledger
	}

	stillPending := make(map[uint]bool)
	for _, d := range b.details {
		if d.rolledBack {
			stillPending[d.entry.TimeEntryID] = true
		}
	}

	// details are applied in creation order so a retraction precedes its replacement
	for _, d := range b.details {
		if d.rolledBack || stillPending[d.entry.TimeEntryID] {
			continue
		}

		switch d.entry.Kind {
		case models.ChangeAdd:
			ledger[d.entry.TimeEntryID] = d.entry.RawEntry
		case models.ChangeRetract:
			delete(ledger, d.entry.TimeEntryID)
		}
		delete(s.pending[b.target], d.entry.TimeEntryID)
	}

	s.watermarks[b.target] = b.asOf
	b.status = batchCommitted

	return nil
}

func (s *MemoryStore) batch(batchID string, status batchStatus) (*memBatch, error) {
	b, found := s.batches[batchID]
	if !found {
		return nil, fmt.Errorf("batch %s not found", batchID)
	}

	if b.status != status {
		return nil, fmt.Errorf("batch %s is %s, expected %s", batchID, b.status, status)
	}

	return b, nil
}

func (s *MemoryStore) markPending(target string, timeEntryID uint) {
	if s.pending[target] == nil {
		s.pending[target] = make(map[uint]bool)
	}
	s.pending[target][timeEntryID] = true
}
