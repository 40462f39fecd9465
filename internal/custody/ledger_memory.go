package custody

import (
	"context"
	"fmt"
	"sync"

	id "rentvault/pkg/domain"
	"rentvault/pkg/platform/sentinel"
)

// InMemoryLedger is the single-binary and test implementation. A single mutex
// keeps transfers linearizable.
type InMemoryLedger struct {
	mu       sync.RWMutex
	balances map[id.Address]uint64
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{balances: make(map[id.Address]uint64)}
}

func (l *InMemoryLedger) Mint(_ context.Context, account id.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
	return nil
}

func (l *InMemoryLedger) Transfer(_ context.Context, from, to id.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return fmt.Errorf("transfer %d from %s: %w", amount, from, sentinel.ErrInsufficientFunds)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *InMemoryLedger) Balance(_ context.Context, account id.Address) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account], nil
}
