package models

import (
	id "rentvault/pkg/domain"
)

// Template is the reusable definition every instance clone shares. The
// registry keeps an append-only log of template versions; rotating the
// template never affects instances already cloned from an earlier version.
//
// The template itself never holds live funds: Initialize on an un-cloned
// template always fails.
type Template struct {
	// Handle names this template build for the version log and audit trail.
	Handle id.Address
}

// NewTemplate builds a template definition.
func NewTemplate(handle id.Address) *Template {
	return &Template{Handle: handle}
}

// Clone stamps out an independent, uninitialized instance bound to this
// template's version.
func (t *Template) Clone(instanceID id.InstanceID, version id.VersionID) *Instance {
	return &Instance{
		ID:              instanceID,
		TemplateVersion: version,
	}
}

// Prototype returns the un-cloned template as an instance value, used to
// verify that the template itself refuses initialization.
func (t *Template) Prototype() *Instance {
	return &Instance{isTemplate: true}
}
