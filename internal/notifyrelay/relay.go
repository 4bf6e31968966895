package notifyrelay

import (
	"context"
	"time"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
	"github.com/jacksonlee411/lease-signflow/pkg/logger"
)

type DeliverFunc func(ctx context.Context, event types.Event) error

type Result struct {
	Dispatched int
	Failed     int
}

type Outbox interface {
	Drain(ctx context.Context, limit int, deliver DeliverFunc) (Result, error)
}

type Relay struct {
	outbox   Outbox
	deliver  DeliverFunc
	interval time.Duration
	batch    int
}

func NewRelay(outbox Outbox, deliver DeliverFunc, interval time.Duration, batch int) *Relay {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Relay{outbox: outbox, deliver: deliver, interval: interval, batch: batch}
}

// RunOnce drains batches until the outbox has nothing left to hand out or a
// batch made no progress.
func (r *Relay) RunOnce(ctx context.Context) (Result, error) {
	var total Result
	for {
		res, err := r.outbox.Drain(ctx, r.batch, r.deliver)
		total.Dispatched += res.Dispatched
		total.Failed += res.Failed
		if err != nil {
			return total, err
		}
		if res.Dispatched == 0 || res.Dispatched+res.Failed < r.batch || ctx.Err() != nil {
			return total, nil
		}
	}
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	runOnce := func() {
		res, err := r.RunOnce(ctx)
		if err != nil {
			logger.Error(ctx, "outbox relay error", "error", err)
			return
		}
		if res.Dispatched > 0 || res.Failed > 0 {
			logger.Info(ctx, "outbox relay", "dispatched", res.Dispatched, "failed", res.Failed)
		}
	}

	runOnce()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
