// Package keeper automates maturity withdrawals. Each pass drains matured
// entries from the head of the schedule, bounded per pass so one run cannot
// monopolize the venue.
package keeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rentvault/internal/platform/metrics"
	"rentvault/internal/schedule"
	id "rentvault/pkg/domain"
	"rentvault/pkg/requestcontext"
)

// Triggerer initiates a maturity withdrawal on one instance. Satisfied by the
// escrow service.
type Triggerer interface {
	TriggerMaturityWithdrawal(ctx context.Context, instanceID id.InstanceID) error
}

// Keeper walks the maturity schedule and triggers withdrawals that are due.
type Keeper struct {
	sched    *schedule.Registry
	escrow   Triggerer
	batchMax int
	// identity stamped on keeper-initiated operations and their events.
	actor id.Address

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Keeper.
type Option func(*Keeper)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Keeper) { k.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(k *Keeper) { k.metrics = m }
}

// New builds a keeper that triggers at most batchMax withdrawals per pass.
func New(sched *schedule.Registry, escrow Triggerer, actor id.Address, batchMax int, opts ...Option) *Keeper {
	if batchMax <= 0 {
		batchMax = 1
	}
	k := &Keeper{
		sched:    sched,
		escrow:   escrow,
		batchMax: batchMax,
		actor:    actor,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// RunPass walks the due prefix of the schedule in maturity order and
// triggers each withdrawal. A failed trigger is counted and skipped so one
// stuck instance cannot starve the entries behind it; the entry stays
// scheduled and is retried on the next pass. Attempts per pass, failed ones
// included, are bounded by batchMax.
func (k *Keeper) RunPass(ctx context.Context) (int, error) {
	ctx = requestcontext.WithActor(ctx, k.actor)
	now := requestcontext.Now(ctx)

	start := time.Now()
	triggered := 0
	attempted := 0
	var errs []error
	defer func() {
		if k.metrics != nil {
			k.metrics.KeeperPassDuration.Observe(time.Since(start).Seconds())
			k.metrics.ScheduleSize.Set(float64(k.sched.Len()))
		}
	}()

	for _, entry := range k.sched.Snapshot() {
		if attempted >= k.batchMax {
			break
		}
		if err := ctx.Err(); err != nil {
			return triggered, err
		}
		if entry.Maturity.After(now) {
			break
		}
		attempted++
		if err := k.escrow.TriggerMaturityWithdrawal(ctx, entry.Instance); err != nil {
			if k.metrics != nil {
				k.metrics.KeeperTriggerErrors.Inc()
			}
			if k.logger != nil {
				k.logger.ErrorContext(ctx, "keeper trigger failed",
					"instance_id", entry.Instance,
					"error", err,
				)
			}
			errs = append(errs, err)
			continue
		}
		triggered++
		if k.logger != nil {
			k.logger.InfoContext(ctx, "maturity withdrawal triggered",
				"instance_id", entry.Instance,
				"maturity", entry.Maturity,
			)
		}
	}
	return triggered, errors.Join(errs...)
}
