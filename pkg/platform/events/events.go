// Package events defines the escrow event stream consumed by external
// observers and indexers. Events are emitted from domain logic and kept
// transport-agnostic so stores and sinks can fan out.
package events

import (
	"context"
	"time"

	id "rentvault/pkg/domain"
)

// Kind names an escrow lifecycle event.
type Kind string

const (
	KindInstanceCreated             Kind = "instance_created"
	KindDepositFunded               Kind = "deposit_funded"
	KindMaturityWithdrawalTriggered Kind = "maturity_withdrawal_triggered"
	KindReturnAmountProposed        Kind = "return_amount_proposed"
	KindReturnAmountRejected        Kind = "return_amount_rejected"
	KindReturnAmountAccepted        Kind = "return_amount_accepted"
	KindRenterChunkClaimed          Kind = "renter_chunk_claimed"
	KindOwnerChunkClaimed           Kind = "owner_chunk_claimed"
)

// Event is one entry on the escrow stream. Fields not meaningful for a given
// kind are left zero; every event carries the instance id and the parties it
// concerns.
type Event struct {
	Kind       Kind          `json:"kind"`
	Timestamp  time.Time     `json:"timestamp"`
	InstanceID id.InstanceID `json:"instance_id"`

	Owner  id.Address `json:"owner,omitempty"`
	Renter id.Address `json:"renter,omitempty"`

	// Creation payload.
	Administrator  id.Address   `json:"administrator,omitempty"`
	RegistryHandle id.Address   `json:"registry_handle,omitempty"`
	VersionID      id.VersionID `json:"version_id,omitempty"`
	MaturityTime   time.Time    `json:"maturity_time,omitzero"`

	// Amounts in the smallest native unit.
	DepositAmount uint64 `json:"deposit_amount,omitempty"`
	Amount        uint64 `json:"amount,omitempty"`
	// PreviousAmount carries the superseded proposal on
	// KindReturnAmountProposed.
	PreviousAmount uint64 `json:"previous_amount,omitempty"`

	RequestID string `json:"request_id,omitempty"`
}

// Store persists the event stream append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByInstance(ctx context.Context, instanceID id.InstanceID) ([]Event, error)
}

// Publisher pushes events to external observers. Emission is best-effort for
// the escrow core: a failed publish never rolls back the state transition that
// produced the event.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
	Close() error
}
