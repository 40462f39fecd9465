// Package store persists the registry's two append-only sequences. Records
// are never mutated after append; ids are assigned by the service, which
// serializes creation.
package store

import (
	"context"

	"rentvault/internal/registry/models"
)

// RecordStore is the persisted registry state: the instance log and the
// template version log.
type RecordStore interface {
	AppendInstance(ctx context.Context, record models.InstanceRecord) error
	ListInstances(ctx context.Context) ([]models.InstanceRecord, error)
	CountInstances(ctx context.Context) (uint64, error)

	AppendTemplateVersion(ctx context.Context, record models.TemplateVersionRecord) error
	ListTemplateVersions(ctx context.Context) ([]models.TemplateVersionRecord, error)
	CountTemplateVersions(ctx context.Context) (uint64, error)
}
