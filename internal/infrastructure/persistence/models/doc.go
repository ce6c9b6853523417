// Package models contains GORM persistence models for the sync engine tables.
// Domain entities stay free of ORM tags; each model maps to and from its
// entity with ToDomain and a FromDomain constructor.
//
// Structured values (order items, tags, field timestamps, shipping mappings,
// audit deltas) are stored as JSON documents in jsonb columns.
package models
