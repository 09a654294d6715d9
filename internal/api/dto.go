package api

import (
	"github.com/starford/mocsync/internal/mocservice"
	"github.com/starford/mocsync/internal/models"
)

// RegistryEntry is one prefix to index note mapping (aliased from the domain layer).
type RegistryEntry = models.RegistryEntry

// IndexDetail is an index note with its links (aliased from the domain layer).
type IndexDetail = mocservice.IndexDetail

// SyncResult is the outcome of a manual sync (aliased from the domain layer).
type SyncResult = mocservice.SyncResult

// LinkEvent is a journal entry (aliased from the domain layer).
type LinkEvent = models.LinkEvent

// RegistryResponse wraps the registry listing.
type RegistryResponse struct {
	Entries []RegistryEntry `json:"entries" validate:"required"`
	Total   int             `json:"total" example:"3" validate:"required"`
}

// ResolveResponse reports which index note owns a prefix.
type ResolveResponse struct {
	Prefix string `json:"prefix" example:"Projects" validate:"required"`
	Path   string `json:"path" example:"/vault/Projects - MOC.md" validate:"required"`
}

// ClassifyResponse reports how a note name is classified.
type ClassifyResponse struct {
	Name       string `json:"name" example:"Projects - MOC" validate:"required"`
	Index      bool   `json:"index" example:"true" validate:"required"`
	Prefix     string `json:"prefix,omitempty" example:"Projects"`
	Rule       string `json:"rule,omitempty" example:"suffix"`
	NotePrefix string `json:"note_prefix,omitempty" example:"Projects"`
}

// RebuildResponse reports the registry size after a rebuild.
type RebuildResponse struct {
	Total int `json:"total" example:"3" validate:"required"`
}

// JournalResponse wraps journal entries.
type JournalResponse struct {
	Events []LinkEvent `json:"events" validate:"required"`
}
