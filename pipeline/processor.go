package pipeline

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"jiaming2012/labor-export/models"
	"jiaming2012/labor-export/payroll"
)

type Status string

const (
	StatusAccepted Status = "accepted"
	StatusFiltered Status = "filtered"
	StatusFailed   Status = "failed"
)

// Outcome describes what happened to one batch entry. Compensating counts the derived
// entries that reached the aggregator, Dropped the ones the filter rejected.
type Outcome struct {
	Status       Status
	Reason       string
	Compensating int
	Dropped      int
}

type queued struct {
	entry   models.RawEntry
	derived bool
}

// Processor runs entries through filter, union override and rate rules into aggregation.
// Compensating entries are held back and fed to the same aggregator, sorted by key,
// once the batch stream is closed.
type Processor struct {
	payCodes   models.PayCodeSet
	prefixes   []string
	unions     *models.UnionCodeMap
	rules      payroll.RateRules
	aggregator *payroll.Aggregator
	deferred   []models.RawEntry
}

func NewProcessor(payCodes models.PayCodeSet, prefixes []string, unions *models.UnionCodeMap, rules payroll.RateRules, emitter payroll.Emitter, strict bool) *Processor {
	if len(prefixes) == 0 {
		prefixes = payroll.DefaultWorkOrderPrefixes
	}

	return &Processor{
		payCodes:   payCodes,
		prefixes:   prefixes,
		unions:     unions,
		rules:      rules,
		aggregator: payroll.NewAggregator(emitter, strict),
	}
}

// Close aggregates the held back compensating entries and finalizes the last group.
func (p *Processor) Close() error {
	sort.SliceStable(p.deferred, func(i, j int) bool {
		return p.deferred[i].Key().Less(p.deferred[j].Key())
	})

	for _, e := range p.deferred {
		if err := p.aggregator.Add(e); err != nil {
			return err
		}
	}
	p.deferred = nil

	return p.aggregator.Close()
}

func (p *Processor) Stats() payroll.AggregatorStats {
	return p.aggregator.Stats()
}

// Process handles one entry. A returned error is fatal to the run; a record level
// problem is reported through the Outcome instead.
func (p *Processor) Process(e models.RawEntry) (Outcome, error) {
	if err := e.Validate(); err != nil {
		return Outcome{Status: StatusFailed, Reason: err.Error()}, nil
	}

	out := Outcome{Status: StatusAccepted}
	queue := []queued{{entry: e}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if ok, reason := payroll.Check(item.entry, p.payCodes, p.prefixes); !ok {
			if !item.derived {
				return Outcome{Status: StatusFiltered, Reason: reason}, nil
			}

			log.Debugf("dropping compensating entry for %s: %s", item.entry.EmployeeID, reason)
			out.Dropped++
			continue
		}

		entry, err := payroll.ApplyUnionOverride(item.entry, p.unions)
		if err != nil {
			return out, err
		}

		primary, compensating := p.rules.Adjust(entry)
		if compensating != nil {
			if item.derived {
				return out, &models.ConfigurationError{Reason: "compensating pay code " + item.entry.PayCode + " is itself double rate"}
			}
			queue = append(queue, queued{entry: *compensating, derived: true})
		}

		if item.derived {
			p.deferred = append(p.deferred, primary)
			out.Compensating++
			continue
		}

		if err := p.aggregator.Add(primary); err != nil {
			return out, err
		}
	}

	return out, nil
}
