package store

import (
	"context"
	"sync"

	"rentvault/internal/registry/models"
	"rentvault/pkg/platform/sentinel"
)

// InMemory keeps both append-only sequences in slices, in append order.
type InMemory struct {
	mu        sync.RWMutex
	instances []models.InstanceRecord
	versions  []models.TemplateVersionRecord
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) AppendInstance(_ context.Context, record models.InstanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances = append(s.instances, record)
	return nil
}

func (s *InMemory) ListInstances(_ context.Context) ([]models.InstanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.InstanceRecord{}, s.instances...), nil
}

func (s *InMemory) CountInstances(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.instances)), nil
}

func (s *InMemory) AppendTemplateVersion(_ context.Context, record models.TemplateVersionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Version ids are the primary key; mirror the relational store's
	// uniqueness here.
	for _, existing := range s.versions {
		if existing.VersionID == record.VersionID {
			return sentinel.ErrConflict
		}
	}
	s.versions = append(s.versions, record)
	return nil
}

func (s *InMemory) ListTemplateVersions(_ context.Context) ([]models.TemplateVersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.TemplateVersionRecord{}, s.versions...), nil
}

func (s *InMemory) CountTemplateVersions(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.versions)), nil
}
