package report

import (
	"context"
	"time"

	"debtster-kpi/internal/kpi"

	"golang.org/x/sync/errgroup"
)

// Observer receives the outcome of every section build.
type Observer interface {
	ObserveSection(key, status string, elapsed time.Duration)
}

type Builder struct {
	observer Observer
	limit    int
}

// NewBuilder returns a builder running at most limit aggregators at once.
// A non-positive limit means one goroutine per section.
func NewBuilder(observer Observer, limit int) *Builder {
	return &Builder{observer: observer, limit: limit}
}

// Build computes the sections named by keys, or the whole catalog when keys is
// empty. Output follows catalog order regardless of completion order.
func (b *Builder) Build(ctx context.Context, t *kpi.Table, f kpi.Filter, keys ...string) ([]Section, error) {
	defs, err := Select(keys...)
	if err != nil {
		return nil, err
	}

	sections := make([]Section, len(defs))
	g, ctx := errgroup.WithContext(ctx)
	if b.limit > 0 {
		g.SetLimit(b.limit)
	}
	for i, def := range defs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			sections[i] = Evaluate(def, t, f)
			if b.observer != nil {
				b.observer.ObserveSection(def.Key, string(sections[i].Status), time.Since(start))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sections, nil
}
