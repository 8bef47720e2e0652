package payroll

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"jiaming2012/labor-export/models"
)

// Emitter receives finished aggregates in emission order.
type Emitter interface {
	Emit(a models.Aggregate) error
}

type EmitterFunc func(a models.Aggregate) error

func (f EmitterFunc) Emit(a models.Aggregate) error {
	return f(a)
}

type AggregatorStats struct {
	Groups     int
	Emitted    int
	Suppressed int
}

// Aggregator folds a stream of entries sorted by composite key into one aggregate per
// contiguous run of equal keys. At most one aggregate is open at a time.
//
// The input must be grouped by key. In strict mode a key that reappears after its
// group was closed fails with an *models.OrderingError; otherwise it silently starts
// a second group.
type Aggregator struct {
	emitter Emitter
	active  *models.Aggregate
	strict  bool
	closed  map[models.CompositeKey]struct{}
	stats   AggregatorStats
}

func NewAggregator(emitter Emitter, strict bool) *Aggregator {
	g := &Aggregator{
		emitter: emitter,
		strict:  strict,
	}

	if strict {
		g.closed = make(map[models.CompositeKey]struct{})
	}

	return g
}

func (g *Aggregator) Add(e models.RawEntry) error {
	key := e.Key()

	if g.active == nil || g.active.Key != key {
		if err := g.finalize(); err != nil {
			return err
		}

		if g.strict {
			if _, seen := g.closed[key]; seen {
				return &models.OrderingError{Key: key}
			}
		}

		g.active = models.NewAggregate(e)
		g.stats.Groups++
	}

	g.active.Fold(e)
	return nil
}

// Close finalizes the open aggregate at end of stream.
func (g *Aggregator) Close() error {
	return g.finalize()
}

func (g *Aggregator) Stats() AggregatorStats {
	return g.stats
}

func (g *Aggregator) finalize() error {
	if g.active == nil {
		return nil
	}

	a := g.active
	g.active = nil

	if g.strict {
		g.closed[a.Key] = struct{}{}
	}

	if a.IsZero() {
		log.Debugf("suppressing zero-net group %s", a.Key)
		g.stats.Suppressed++
		return nil
	}

	if err := g.emitter.Emit(*a); err != nil {
		return fmt.Errorf("failed to emit %s: %w", a.Key, err)
	}

	g.stats.Emitted++
	return nil
}
