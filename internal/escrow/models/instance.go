package models

import (
	"sync"
	"time"

	"rentvault/internal/schedule"
	"rentvault/internal/yield"
	id "rentvault/pkg/domain"
	dErrors "rentvault/pkg/domain-errors"
)

// Status is the derived lifecycle state of a deposit instance. Exactly one
// status holds at any time; it is computed from the settlement flags rather
// than stored, so the flags stay the single source of truth.
type Status string

const (
	StatusUninitialized       Status = "uninitialized"
	StatusFunding             Status = "funding"
	StatusInvested            Status = "invested"
	StatusAwaitingNegotiation Status = "matured_awaiting_negotiation"
	StatusNegotiating         Status = "negotiating"
	StatusSettled             Status = "settled"
)

// Instance is one escrow holding a single rental deposit between one owner
// and one renter.
//
// Invariants:
//   - ID, TemplateVersion, DepositAmount and MaturityTime are immutable after
//     initialization
//   - ProposedReturnAmount is always in [0, DepositAmount]; 0 means no
//     proposal
//   - once Accepted, ProposedReturnAmount never changes again
//   - OwnerChunkClaimed && RenterChunkClaimed implies Paused
//
// The service layer holds the per-instance mutex across every mutating
// operation, so each operation runs to completion atomically.
type Instance struct {
	ID              id.InstanceID
	TemplateVersion id.VersionID

	Administrator id.Address
	Owner         id.Address
	// Renter may be the zero address at creation; the first funder is then
	// bound as the renter of record.
	Renter id.Address

	DepositAmount uint64
	MaturityTime  time.Time

	Funded               bool
	ProposedReturnAmount uint64
	Accepted             bool
	OwnerChunkClaimed    bool
	RenterChunkClaimed   bool
	Paused               bool
	Position             yield.PositionHandle

	grant       schedule.ManagerGrant
	initialized bool
	isTemplate  bool

	mu sync.Mutex
}

// Lock acquires the per-instance mutex. The service holds it for the duration
// of every mutating operation.
func (i *Instance) Lock() { i.mu.Lock() }

// Unlock releases the per-instance mutex.
func (i *Instance) Unlock() { i.mu.Unlock() }

// Status derives the current lifecycle state.
func (i *Instance) Status() Status {
	switch {
	case !i.initialized:
		return StatusUninitialized
	case i.Paused:
		return StatusSettled
	case !i.Funded:
		return StatusFunding
	case i.Position != yield.None:
		return StatusInvested
	case i.ProposedReturnAmount == 0:
		return StatusAwaitingNegotiation
	default:
		return StatusNegotiating
	}
}

// EscrowAccount is the custody-ledger account holding this instance's deposit
// while it is not invested.
func (i *Instance) EscrowAccount() id.Address { return i.ID.EscrowAccount() }

// Grant returns the schedule-manager capability attached at creation.
func (i *Instance) Grant() schedule.ManagerGrant { return i.grant }

// AttachGrant stores the one-time schedule capability. Called by the registry
// immediately after initialization.
func (i *Instance) AttachGrant(grant schedule.ManagerGrant) { i.grant = grant }

// InitParams carries the immutable terms fixed at initialization.
type InitParams struct {
	Administrator id.Address
	Owner         id.Address
	Renter        id.Address
	MaturityTime  time.Time
	DepositAmount uint64
}

// Initialize fixes the instance's terms. Succeeds exactly once per clone and
// never on the template itself.
func (i *Instance) Initialize(p InitParams) error {
	if i.isTemplate {
		return dErrors.New(dErrors.CodeInvalidState, "The template itself can't be initialized")
	}
	if i.initialized {
		return dErrors.New(dErrors.CodeAlreadyDone, "Instance already initialized")
	}
	i.Administrator = p.Administrator
	i.Owner = p.Owner
	i.Renter = p.Renter
	i.MaturityTime = p.MaturityTime
	i.DepositAmount = p.DepositAmount
	i.initialized = true
	return nil
}

// EnsureMutable rejects any state-mutating call once the instance is
// terminal.
func (i *Instance) EnsureMutable() error {
	if i.Paused {
		return dErrors.New(dErrors.CodeTerminated, "The instance is settled and accepts no further calls")
	}
	return nil
}

// CanFund checks the funding preconditions for the given caller and amount.
func (i *Instance) CanFund(caller id.Address, amount uint64) error {
	if err := i.EnsureMutable(); err != nil {
		return err
	}
	if i.Funded {
		return dErrors.New(dErrors.CodeAlreadyDone, "The deposit is already stored")
	}
	if caller.IsZero() || (!i.Renter.IsZero() && caller != i.Renter) {
		return dErrors.New(dErrors.CodeUnauthorized, "The caller is not the property renter")
	}
	if amount != i.DepositAmount {
		return dErrors.New(dErrors.CodeValidation, "Incorrect amount sent")
	}
	return nil
}

// ApplyFund marks the deposit stored, binding the caller as renter of record
// when none was designated.
func (i *Instance) ApplyFund(caller id.Address, position yield.PositionHandle) {
	if i.Renter.IsZero() {
		i.Renter = caller
	}
	i.Funded = true
	i.Position = position
}

// CanTriggerWithdrawal checks the maturity-withdrawal preconditions.
func (i *Instance) CanTriggerWithdrawal(now time.Time) error {
	if err := i.EnsureMutable(); err != nil {
		return err
	}
	if !i.Funded || i.Position == yield.None {
		return dErrors.New(dErrors.CodeInvalidState, "No active yield position to withdraw")
	}
	if now.Before(i.MaturityTime) {
		return dErrors.New(dErrors.CodeNotYetMatured, "The rental period has not ended yet")
	}
	return nil
}

// ApplyWithdrawal clears the yield position.
func (i *Instance) ApplyWithdrawal() {
	i.Position = yield.None
}

// CanPropose checks the owner's return-amount proposal preconditions.
func (i *Instance) CanPropose(caller id.Address, amount uint64, now time.Time) error {
	if err := i.EnsureMutable(); err != nil {
		return err
	}
	if caller != i.Owner {
		return dErrors.New(dErrors.CodeUnauthorized, "The caller is not the property owner")
	}
	if !i.Funded {
		return dErrors.New(dErrors.CodeInvalidState, "No deposit is stored")
	}
	if amount == 0 {
		return dErrors.New(dErrors.CodeValidation, "Proposed amount must be positive")
	}
	if amount > i.DepositAmount {
		return dErrors.New(dErrors.CodeValidation, "Proposed amount exceeds the deposit")
	}
	if now.Before(i.MaturityTime) {
		return dErrors.New(dErrors.CodeNotYetMatured, "The rental period has not ended yet")
	}
	if i.Accepted {
		return dErrors.New(dErrors.CodeAlreadyDone, "An amount has already been accepted")
	}
	return nil
}

// ApplyProposal supersedes the previous proposal and returns it.
func (i *Instance) ApplyProposal(amount uint64) (previous uint64) {
	previous = i.ProposedReturnAmount
	i.ProposedReturnAmount = amount
	return previous
}

// CanRespond checks the renter's accept/reject preconditions.
func (i *Instance) CanRespond(caller id.Address) error {
	if err := i.EnsureMutable(); err != nil {
		return err
	}
	if caller != i.Renter || caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "The caller is not the property renter")
	}
	if i.ProposedReturnAmount == 0 {
		return dErrors.New(dErrors.CodeInvalidState, "No proposed amount to respond to")
	}
	return nil
}

// CanAccept additionally rejects a second acceptance.
func (i *Instance) CanAccept(caller id.Address) error {
	if err := i.CanRespond(caller); err != nil {
		return err
	}
	if i.Accepted {
		return dErrors.New(dErrors.CodeAlreadyDone, "An amount has already been accepted")
	}
	return nil
}

// ApplyAcceptance marks the proposal accepted. Irreversible.
func (i *Instance) ApplyAcceptance() {
	i.Accepted = true
}

// Party distinguishes the two settlement chunks.
type Party string

const (
	PartyOwner  Party = "owner"
	PartyRenter Party = "renter"
)

// CanClaim checks the claim preconditions for one party's chunk.
func (i *Instance) CanClaim(caller id.Address, party Party) error {
	if err := i.EnsureMutable(); err != nil {
		return err
	}
	switch party {
	case PartyRenter:
		if caller != i.Renter || caller.IsZero() {
			return dErrors.New(dErrors.CodeUnauthorized, "The caller is not the property renter")
		}
	case PartyOwner:
		if caller != i.Owner {
			return dErrors.New(dErrors.CodeUnauthorized, "The caller is not the property owner")
		}
	}
	if !i.Funded {
		return dErrors.New(dErrors.CodeInvalidState, "No deposit is stored")
	}
	if i.Position != yield.None {
		return dErrors.New(dErrors.CodeInvalidState, "The deposit is still invested")
	}
	if !i.Accepted {
		return dErrors.New(dErrors.CodeInvalidState, "No amount has been accepted yet")
	}
	claimed := i.RenterChunkClaimed
	if party == PartyOwner {
		claimed = i.OwnerChunkClaimed
	}
	if claimed {
		return dErrors.New(dErrors.CodeAlreadyDone, "The chunk is already claimed")
	}
	return nil
}

// ChunkAmount is the share the given party receives: the accepted return
// amount for the renter, its exact complement for the owner.
func (i *Instance) ChunkAmount(party Party) uint64 {
	if party == PartyRenter {
		return i.ProposedReturnAmount
	}
	return i.DepositAmount - i.ProposedReturnAmount
}

// ApplyClaim marks one chunk claimed; once both are claimed the instance
// becomes terminal. Returns true when this claim settled the instance.
func (i *Instance) ApplyClaim(party Party) (settled bool) {
	if party == PartyRenter {
		i.RenterChunkClaimed = true
	} else {
		i.OwnerChunkClaimed = true
	}
	if i.RenterChunkClaimed && i.OwnerChunkClaimed {
		i.Paused = true
	}
	return i.Paused
}
