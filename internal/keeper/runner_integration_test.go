//go:build integration

package keeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	platformredis "rentvault/internal/platform/redis"
	"rentvault/internal/schedule"
	id "rentvault/pkg/domain"
	"rentvault/pkg/testutil/containers"
)

// Two runners against one Redis: only the lock holder runs passes, and the
// holder keeps leadership across consecutive passes.
func TestRunnerLeaderLock(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rc := containers.NewRedisContainer(t)
	require.NoError(t, rc.FlushAll(context.Background()))

	client, err := platformredis.New(rc.Addr)
	require.NoError(t, err)
	defer client.Close()

	sched := schedule.New("registry:admin")
	keep := New(sched, triggerFunc(func(ctx context.Context, _ id.InstanceID) error { return nil }), "keeper:test", 1)

	first := NewRunner(keep, time.Minute, client, nil)
	second := NewRunner(keep, time.Minute, client, nil)

	ctx := context.Background()
	require.True(t, first.acquireLeadership(ctx), "first runner takes the lock")
	require.False(t, second.acquireLeadership(ctx), "second runner is locked out")
	require.True(t, first.acquireLeadership(ctx), "holder refreshes its own lock")

	// Without Redis every replica leads.
	bare := NewRunner(keep, time.Minute, nil, nil)
	require.True(t, bare.acquireLeadership(ctx))
}
