// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets values, services read them. Keeping this package free of
// net/http lets the escrow and registry services stay importable from workers
// and tests without pulling transport code.
//
// Usage in services (read values):
//
//	actor := requestcontext.Actor(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithActor(ctx, renter)
//	ctx = requestcontext.WithTime(ctx, maturity.Add(time.Second))
package requestcontext

import (
	"context"
	"time"

	id "rentvault/pkg/domain"
)

type (
	actorKey       struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Actor retrieves the calling account address from the context. Returns the
// zero address if not set; role-gated operations treat that as an
// authorization failure.
func Actor(ctx context.Context) id.Address {
	if actor, ok := ctx.Value(actorKey{}).(id.Address); ok {
		return actor
	}
	return id.ZeroAddress
}

// WithActor injects the calling account address into the context.
func WithActor(ctx context.Context, actor id.Address) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// RequestID retrieves the correlation id set by middleware, or "" outside an
// HTTP request.
func RequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}

// WithRequestID injects a correlation id into the context.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, rid)
}

// Now returns the request-scoped time when set, falling back to time.Now for
// non-HTTP contexts (keeper passes, CLI). Maturity checks read time through
// this accessor so tests can pin the clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request-scoped time.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
