// Package store holds the live deposit instances. Instance runtime state is
// process-local: the durable record of creation lives in the registry's
// append-only stores, and schedule membership is rebuilt from live instances.
package store

import (
	"context"
	"fmt"
	"sync"

	"rentvault/internal/escrow/models"
	id "rentvault/pkg/domain"
	"rentvault/pkg/platform/sentinel"
)

// InMemory indexes live instances by id.
type InMemory struct {
	mu        sync.RWMutex
	instances map[id.InstanceID]*models.Instance
}

func NewInMemory() *InMemory {
	return &InMemory{instances: make(map[id.InstanceID]*models.Instance)}
}

// Save registers a freshly cloned instance. Instances are mutated in place
// under their own lock afterwards.
func (s *InMemory) Save(_ context.Context, inst *models.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.instances[inst.ID]; exists {
		return fmt.Errorf("instance %s: %w", inst.ID, sentinel.ErrConflict)
	}
	s.instances[inst.ID] = inst
	return nil
}

// FindByID returns the live instance, or sentinel.ErrNotFound.
func (s *InMemory) FindByID(_ context.Context, instanceID id.InstanceID) (*models.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, fmt.Errorf("instance %s: %w", instanceID, sentinel.ErrNotFound)
	}
	return inst, nil
}
