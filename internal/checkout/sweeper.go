package checkout

import (
	"context"
	"time"
)

// Sweeper periodically finishes checkouts whose intent was written but whose
// apply never committed, and retries refunds that did not go through.
type Sweeper struct {
	Service  *Service
	Interval time.Duration
	Grace    time.Duration
	Batch    int
}

func (w *Sweeper) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	batch := w.Batch
	if batch <= 0 {
		batch = 50
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.sweep(ctx, batch)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context, batch int) {
	n, err := w.Service.ResumePending(ctx, w.Grace, batch)
	if err != nil {
		w.Service.Log.Error("sweep pending checkouts", "error", err)
	} else if n > 0 {
		w.Service.Log.Info("resumed pending checkouts", "count", n)
	}
	n, err = w.Service.RetryRefunds(ctx, w.Grace, batch)
	if err != nil {
		w.Service.Log.Error("sweep refunds", "error", err)
	} else if n > 0 {
		w.Service.Log.Info("refunded failed checkouts", "count", n)
	}
}
