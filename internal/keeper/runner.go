package keeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	platformredis "rentvault/internal/platform/redis"
)

const (
	leaderKey = "rentvault:keeper:leader"
	// leaderTTL must exceed the longest plausible pass so the lock cannot
	// lapse mid-pass.
	leaderTTL = 30 * time.Second
)

// Runner schedules keeper passes at a fixed interval. When a Redis client is
// supplied, a leader lock ensures only one replica runs passes at a time.
type Runner struct {
	keeper   *Keeper
	interval time.Duration
	redis    *platformredis.Client
	logger   *slog.Logger
	// replicaID distinguishes this process in the leader lock value.
	replicaID string

	scheduler *gocron.Scheduler
}

// NewRunner builds the periodic runner. redis may be nil, in which case every
// replica runs passes unconditionally.
func NewRunner(keeper *Keeper, interval time.Duration, redis *platformredis.Client, logger *slog.Logger) *Runner {
	return &Runner{
		keeper:    keeper,
		interval:  interval,
		redis:     redis,
		logger:    logger,
		replicaID: uuid.NewString(),
	}
}

// Start begins periodic passes and returns immediately. ctx bounds each pass.
func (r *Runner) Start(ctx context.Context) error {
	r.scheduler = gocron.NewScheduler(time.UTC)
	_, err := r.scheduler.Every(r.interval).Do(func() {
		r.pass(ctx)
	})
	if err != nil {
		return err
	}
	r.scheduler.StartAsync()
	return nil
}

// Stop halts the schedule and waits for an in-flight pass to finish.
func (r *Runner) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
}

func (r *Runner) pass(ctx context.Context) {
	if !r.acquireLeadership(ctx) {
		return
	}
	if _, err := r.keeper.RunPass(ctx); err != nil && r.logger != nil {
		r.logger.WarnContext(ctx, "keeper pass ended early", "error", err)
	}
}

// acquireLeadership takes or refreshes the leader lock. Lock loss between
// passes is tolerated: triggering a withdrawal twice is idempotent at the
// instance level.
func (r *Runner) acquireLeadership(ctx context.Context) bool {
	if r.redis == nil {
		return true
	}
	ok, err := r.redis.SetNX(ctx, leaderKey, r.replicaID, leaderTTL).Result()
	if err != nil {
		if r.logger != nil {
			r.logger.WarnContext(ctx, "leader lock unavailable", "error", err)
		}
		return false
	}
	if ok {
		return true
	}
	// Refresh the TTL if we already hold the lock from a prior pass.
	holder, err := r.redis.Get(ctx, leaderKey).Result()
	if err == nil && holder == r.replicaID {
		r.redis.Expire(ctx, leaderKey, leaderTTL)
		return true
	}
	return false
}
