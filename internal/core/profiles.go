package core

import (
	"github.com/JonMunkholm/credstore/internal/codec"
	"github.com/JonMunkholm/credstore/internal/query"
	"github.com/JonMunkholm/credstore/internal/schema"
)

// Lookup enriches listed records with one field from another entity.
//
// For each record, the row of Entity whose MatchField equals the record's
// Field supplies ValueField, stored on the record as As.
type Lookup struct {
	Field      string
	Entity     string
	MatchField string
	ValueField string
	As         string
}

// ListProfile holds the per-entity listing and create conventions.
type ListProfile struct {
	SearchFields    []string
	DateFields      []string
	DefaultPageSize int
	Defaults        codec.Record // applied on create to absent fields
	Lookups         []Lookup
}

// Profiles maps entity names to their profile.
type Profiles map[string]ListProfile

// Get returns the profile for entity, or a zero profile with the default
// page size.
func (p Profiles) Get(entity string) ListProfile {
	prof, ok := p[entity]
	if !ok {
		return ListProfile{DefaultPageSize: query.DefaultPageSize}
	}
	if prof.DefaultPageSize == 0 {
		prof.DefaultPageSize = query.DefaultPageSize
	}
	return prof
}

// DefaultProfiles returns the profiles of the built-in credentialing entities.
func DefaultProfiles() Profiles {
	return Profiles{
		schema.Providers: {
			SearchFields: []string{"firstName", "lastName", "npi", "email", "specialty"},
			Defaults:     codec.Record{"status": "Active"},
		},
		schema.Facilities: {
			SearchFields: []string{"name", "city", "state"},
			Defaults:     codec.Record{"status": "Active"},
		},
		schema.Licenses: {
			SearchFields: []string{"licenseNumber", "state", "licenseType"},
			DateFields:   []string{"issueDate", "expirationDate"},
			Defaults:     codec.Record{"status": "Active"},
		},
		schema.Requests: {
			SearchFields:    []string{"requestType", "status", "ownerEmail", "ownerName"},
			DateFields:      []string{"dueDate"},
			DefaultPageSize: 25,
			Defaults:        codec.Record{"status": "Open", "priority": "Normal"},
			Lookups: []Lookup{{
				Field:      "ownerEmail",
				Entity:     schema.Users,
				MatchField: "email",
				ValueField: "name",
				As:         "ownerName",
			}},
		},
		schema.RequestEvents: {
			SearchFields: []string{"eventType", "message"},
		},
		schema.Users: {
			SearchFields: []string{"email", "name", "role"},
			Defaults:     codec.Record{"role": "viewer", "active": false},
		},
		schema.AuditLog: {
			SearchFields: []string{"kind", "actor", "message"},
			DateFields:   []string{"timestamp"},
		},
	}
}
