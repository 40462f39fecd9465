package yield

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"rentvault/internal/custody"
	id "rentvault/pkg/domain"
	"rentvault/pkg/platform/sentinel"
)

// venueAccount holds all invested principal on the ledger while positions are
// open.
const venueAccount = id.Address("venue:simulated")

// SimulatedVenue is an in-memory lending venue for single-binary deployments
// and tests. Yield is a fixed basis-point rate applied once at divestment,
// minted by the venue. FailNext* toggles inject venue outages to exercise the
// no-partial-transition guarantee.
type SimulatedVenue struct {
	mu        sync.Mutex
	ledger    custody.Ledger
	yieldBps  uint64
	positions map[PositionHandle]position

	failNextInvest bool
	failNextDivest bool
}

type position struct {
	account   id.Address
	principal uint64
}

// NewSimulatedVenue builds a venue that accrues yieldBps basis points on every
// position.
func NewSimulatedVenue(ledger custody.Ledger, yieldBps uint64) *SimulatedVenue {
	return &SimulatedVenue{
		ledger:    ledger,
		yieldBps:  yieldBps,
		positions: make(map[PositionHandle]position),
	}
}

// FailNextInvest makes the next Invest call fail before any custody movement.
func (v *SimulatedVenue) FailNextInvest() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failNextInvest = true
}

// FailNextDivest makes the next Divest call fail before any custody movement.
func (v *SimulatedVenue) FailNextDivest() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failNextDivest = true
}

func (v *SimulatedVenue) Invest(ctx context.Context, account id.Address, amount uint64) (PositionHandle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.failNextInvest {
		v.failNextInvest = false
		return None, fmt.Errorf("simulated venue outage: %w", sentinel.ErrUnavailable)
	}

	handle := PositionHandle(uuid.NewString())
	if err := v.ledger.Transfer(ctx, account, venueAccount, amount); err != nil {
		return None, fmt.Errorf("move principal to venue: %w", err)
	}
	v.positions[handle] = position{account: account, principal: amount}
	return handle, nil
}

func (v *SimulatedVenue) Divest(ctx context.Context, account id.Address, handle PositionHandle) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.failNextDivest {
		v.failNextDivest = false
		return 0, fmt.Errorf("simulated venue outage: %w", sentinel.ErrUnavailable)
	}

	pos, ok := v.positions[handle]
	if !ok {
		return 0, fmt.Errorf("position %s: %w", handle, sentinel.ErrNotFound)
	}

	accrued := pos.principal * v.yieldBps / 10_000
	if accrued > 0 {
		if err := v.ledger.Mint(ctx, venueAccount, accrued); err != nil {
			return 0, fmt.Errorf("accrue yield: %w", err)
		}
	}
	recovered := pos.principal + accrued
	if err := v.ledger.Transfer(ctx, venueAccount, account, recovered); err != nil {
		return 0, fmt.Errorf("return principal from venue: %w", err)
	}
	delete(v.positions, handle)
	return recovered, nil
}
