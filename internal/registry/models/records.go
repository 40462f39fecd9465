package models

import (
	"time"

	id "rentvault/pkg/domain"
)

// TemplateVersionRecord is one entry in the registry's append-only version
// log. Version ids increase monotonically from 0; a record never changes
// after creation, so existing clones stay auditable against the exact
// template build they were stamped from.
type TemplateVersionRecord struct {
	VersionID      id.VersionID `json:"version_id"`
	TemplateHandle id.Address   `json:"template_handle"`
	CreatedAt      time.Time    `json:"created_at"`
}

// InstanceRecord is one entry in the registry's append-only instance log,
// enumerable by creation order.
type InstanceRecord struct {
	InstanceID     id.InstanceID `json:"instance_id"`
	VersionID      id.VersionID  `json:"version_id"`
	Creator        id.Address    `json:"creator"`
	InstanceHandle id.Address    `json:"instance_handle"`
	CreatedAt      time.Time     `json:"created_at"`
}
