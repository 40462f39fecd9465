package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the custody ledger
// return these (optionally wrapped) so services can translate them into domain
// errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record or account does not exist in the store
// - ErrConflict: concurrent writers collided on the same record
// - ErrInsufficientFunds: a ledger debit exceeds the account balance
// - ErrInvalidState: record in wrong state for the requested mutation
// - ErrUnavailable: backing service temporarily unavailable
//
// For precondition violations in domain terms, use pkg/domain-errors directly.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidState      = errors.New("invalid state")
	ErrUnavailable       = errors.New("unavailable")
)
