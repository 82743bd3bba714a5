package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/phrazzld/resource-api/internal/store"
)

// InstrumentedAdapter wraps a storage adapter and records the latency and
// outcome of every Load and Save.
type InstrumentedAdapter struct {
	next      store.Adapter
	collector *Collector
}

var _ store.Adapter = (*InstrumentedAdapter)(nil)

// InstrumentAdapter wraps next. Errors pass through unchanged.
func InstrumentAdapter(next store.Adapter, collector *Collector) *InstrumentedAdapter {
	return &InstrumentedAdapter{next: next, collector: collector}
}

// Load implements store.Adapter.
func (a *InstrumentedAdapter) Load(ctx context.Context, kind string) (*store.Collection, error) {
	start := time.Now()
	c, err := a.next.Load(ctx, kind)
	a.collector.RecordStorageOp(kind, "load", outcome(err), time.Since(start))
	return c, err
}

// Save implements store.Adapter.
func (a *InstrumentedAdapter) Save(ctx context.Context, c *store.Collection) error {
	start := time.Now()
	err := a.next.Save(ctx, c)
	a.collector.RecordStorageOp(c.Kind, "save", outcome(err), time.Since(start))
	return err
}

// Close implements store.Adapter.
func (a *InstrumentedAdapter) Close() error {
	return a.next.Close()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, store.ErrConflict):
		return OutcomeConflict
	default:
		return OutcomeFailure
	}
}
