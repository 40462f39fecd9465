// Package yield defines the external lending-venue collaborator. The escrow
// core only sees the Router interface and an opaque position handle; routing
// internals live with the venue.
package yield

import (
	"context"

	id "rentvault/pkg/domain"
)

// PositionHandle is the venue's opaque reference to an invested deposit. The
// zero value means "no active position".
type PositionHandle string

// None is the cleared position handle.
const None PositionHandle = ""

// Router moves custody into and out of an external lending position.
//
// Both calls must be assumed fallible (venue unavailable). Callers rely on
// failure leaving the ledger untouched, so implementations perform their
// custody movement last, after the venue side has succeeded.
type Router interface {
	// Invest moves amount out of account into a fresh lending position and
	// returns its handle.
	Invest(ctx context.Context, account id.Address, amount uint64) (PositionHandle, error)

	// Divest closes the position and returns the recovered amount to account.
	// The recovered amount is at least the invested principal plus whatever
	// yield the venue accrued.
	Divest(ctx context.Context, account id.Address, position PositionHandle) (uint64, error)
}
