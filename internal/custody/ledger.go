// Package custody tracks native-unit balances for every account the escrow
// touches: counterparties, per-instance escrow accounts, the simulated venue
// and the registry fee account.
//
// Every mutation is a balanced transfer, so value is conserved across the
// system by construction.
package custody

import (
	"context"

	id "rentvault/pkg/domain"
)

// Ledger moves custody between accounts. Implementations must be atomic per
// call: a failed transfer leaves both balances untouched.
type Ledger interface {
	// Mint credits newly observed external value to an account: the funding
	// path's inbound deposit payment and the venue's accrued yield.
	Mint(ctx context.Context, account id.Address, amount uint64) error

	// Transfer moves amount from one account to another. Returns
	// sentinel.ErrInsufficientFunds (wrapped) when the source balance is too
	// low.
	Transfer(ctx context.Context, from, to id.Address, amount uint64) error

	// Balance reports an account's current balance. Unknown accounts hold 0.
	Balance(ctx context.Context, account id.Address) (uint64, error)
}
