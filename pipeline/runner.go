package pipeline

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"jiaming2012/labor-export/config"
	"jiaming2012/labor-export/export"
	"jiaming2012/labor-export/models"
	"jiaming2012/labor-export/payroll"
	"jiaming2012/labor-export/service/diff"
	"jiaming2012/labor-export/service/external"
)

type Config struct {
	Target         string
	OutputPath     string
	Writer         export.Options
	PayCodeSetType string
	PayCodeSetName string
	EmployeeFilter string
	Prefixes       []string
	Rules          payroll.RateRules
	StrictOrdering bool
	GraceMinutes   int
	WindowStart    time.Time
	WindowEnd      time.Time
}

// Uploader delivers a finished export file and returns its remote location.
type Uploader interface {
	Upload(localPath string) (string, error)
}

type Summary struct {
	BatchID             string
	Target              string
	Start               time.Time
	End                 time.Time
	StartedAt           time.Time
	FinishedAt          time.Time
	Entries             int
	Accepted            int
	Filtered            int
	Failed              int
	Compensating        int
	CompensatingDropped int
	Groups              int
	Emitted             int
	Suppressed          int
	RolledBack          int
	Cancelled           bool
	Rejections          []*models.RecordError
	OutputPath          string
	RemotePath          string
}

// Runner executes one export run of a target.
type Runner struct {
	cfg       Config
	engine    *diff.Engine
	reference external.ReferenceSource
	uploader  Uploader
	now       func() time.Time
}

func NewRunner(cfg Config, engine *diff.Engine, reference external.ReferenceSource, uploader Uploader) *Runner {
	return &Runner{
		cfg:       cfg,
		engine:    engine,
		reference: reference,
		uploader:  uploader,
		now:       time.Now,
	}
}

func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// unitKey identifies the details that are committed or rolled back together: all
// details of one time entry, or a single detail without one.
type unitKey struct {
	timeEntryID uint
	detailID    uint
}

func unitOf(e models.BatchEntry) unitKey {
	if e.TimeEntryID == 0 {
		return unitKey{detailID: e.DetailID}
	}
	return unitKey{timeEntryID: e.TimeEntryID}
}

// Run computes the next batch, writes its aggregates and commits it. On a fatal error
// the batch is rolled back and no output is left behind. When ctx is cancelled the
// time entries not yet started are rolled back and the processed part is committed.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	summary := Summary{Target: r.cfg.Target, StartedAt: r.now()}
	logger := log.WithField("target", r.cfg.Target)

	w, err := export.Create(r.cfg.OutputPath, r.cfg.Writer)
	if err != nil {
		return summary, err
	}
	defer w.Close()

	payCodes, unions, err := external.LoadReferenceData(ctx, r.reference, r.cfg.PayCodeSetType, r.cfg.PayCodeSetName, r.cfg.EmployeeFilter, summary.StartedAt)
	if err != nil {
		return summary, err
	}

	batch, err := r.engine.ComputeBatch(ctx, r.cfg.WindowStart, r.cfg.WindowEnd, r.cfg.GraceMinutes)
	if err != nil {
		return summary, err
	}

	summary.BatchID = batch.ID
	summary.Start = batch.Start
	summary.End = batch.End
	summary.Entries = len(batch.Entries)
	logger = logger.WithField("batch", batch.ID)

	// outcome steps run even after ctx is cancelled
	finishCtx := context.WithoutCancel(ctx)

	fail := func(err error) (Summary, error) {
		logger.Errorf("export failed, rolling back: %v", err)
		if rbErr := r.engine.Rollback(finishCtx, batch); rbErr != nil {
			logger.Errorf("failed to roll back: %v", rbErr)
		}
		w.Discard()
		summary.FinishedAt = r.now()
		return summary, err
	}

	// rejected entries take the rest of their time entry down with them
	rejected := make(map[unitKey]bool)
	for _, entry := range batch.Entries {
		err := entry.Validate()
		if err == nil {
			err = w.Check(entry.RawEntry)
		}
		if err == nil {
			continue
		}

		summary.Failed++
		rejection := &models.RecordError{DetailID: entry.DetailID, Err: err}
		summary.Rejections = append(summary.Rejections, rejection)
		logger.WithFields(log.Fields{"employee": entry.EmployeeID, "pay_code": entry.PayCode}).
			Warnf("rejecting %s entry %d: %v", entry.Kind, entry.TimeEntryID, rejection)
		rejected[unitOf(entry)] = true
	}

	processor := NewProcessor(payCodes, r.cfg.Prefixes, unions, r.cfg.Rules, w, r.cfg.StrictOrdering)
	started := make(map[unitKey]bool)
	rolledBack := make(map[unitKey]bool)

	for _, entry := range batch.Entries {
		unit := unitOf(entry)

		if !summary.Cancelled && ctx.Err() != nil {
			summary.Cancelled = true
			logger.Warn("run cancelled, leaving entries not yet started pending")
		}

		if rejected[unit] || (summary.Cancelled && !started[unit]) {
			if !rolledBack[unit] {
				if err := r.engine.RollbackEntry(finishCtx, batch, entry); err != nil {
					return fail(err)
				}
				rolledBack[unit] = true
			}
			summary.RolledBack++
			continue
		}
		started[unit] = true

		outcome, err := processor.Process(entry.RawEntry)
		if err != nil {
			return fail(err)
		}

		summary.Compensating += outcome.Compensating
		summary.CompensatingDropped += outcome.Dropped

		switch outcome.Status {
		case StatusAccepted:
			summary.Accepted++
		case StatusFiltered:
			summary.Filtered++
			logger.WithFields(log.Fields{"employee": entry.EmployeeID, "pay_code": entry.PayCode}).
				Debugf("filtered %s entry %d: %s", entry.Kind, entry.TimeEntryID, outcome.Reason)
		case StatusFailed:
			return fail(&models.RecordError{DetailID: entry.DetailID, Err: errors.New(outcome.Reason)})
		}
	}

	if err := processor.Close(); err != nil {
		return fail(err)
	}

	stats := processor.Stats()
	summary.Groups = stats.Groups
	summary.Emitted = stats.Emitted
	summary.Suppressed = stats.Suppressed

	if err := w.Finish(); err != nil {
		return fail(err)
	}
	summary.OutputPath = w.Path()

	if r.uploader != nil {
		remote, err := r.uploader.Upload(w.Path())
		if err != nil {
			return fail(&models.DeliveryError{Path: w.Path(), Err: err})
		}
		summary.RemotePath = remote
		logger.Infof("delivered export to %s", remote)
	}

	if err := r.engine.Commit(finishCtx, batch); err != nil {
		return fail(err)
	}

	summary.FinishedAt = r.now()
	logger.Infof("export finished: %d entries, %d accepted, %d filtered, %d failed, %d rows written, %d suppressed",
		summary.Entries, summary.Accepted, summary.Filtered, summary.Failed, summary.Emitted, summary.Suppressed)

	return summary, nil
}

// NewConfig derives the run settings from the job configuration for a run started at now.
func NewConfig(c *config.Configuration, now time.Time) Config {
	return Config{
		Target:         c.ExportTarget,
		OutputPath:     c.ExportPath(now),
		Writer:         export.Options{Delimiter: c.Delimiter, IncludeHeader: c.IncludeHeader},
		PayCodeSetType: c.PayCodeSetType,
		PayCodeSetName: c.PayCodeSetName,
		EmployeeFilter: c.EmployeeFilter,
		Prefixes:       c.Prefixes(),
		Rules:          payroll.NewRateRules(c.DoubleRateSet(), c.CompensatingPayCode),
		StrictOrdering: c.StrictOrdering,
		GraceMinutes:   c.GraceMinutes,
	}
}
