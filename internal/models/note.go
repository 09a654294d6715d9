// Package models defines the domain types shared across mocsync packages.
package models

import "time"

// Link event kinds.
const (
	KindLinkAdded       = "link.added"
	KindLinkRemoved     = "link.removed"
	KindSyncFailed      = "sync.failed"
	KindIndexRegistered = "index.registered"
	KindIndexRemoved    = "index.removed"
)

// NoteFile is a lightweight representation of a Markdown file in the vault.
type NoteFile struct {
	Path      string    `json:"path"`     // relative to vault root
	AbsPath   string    `json:"abs_path"` // absolute on disk
	UpdatedAt time.Time `json:"updated_at"`
}

// RegistryEntry maps a prefix to the index file (MOC) that owns it.
type RegistryEntry struct {
	Prefix string `json:"prefix"`
	Path   string `json:"path"`
}

// LinkEvent describes a change made (or attempted) by the daemon.
type LinkEvent struct {
	ID        int64     `json:"id,omitempty"`
	Kind      string    `json:"kind"`
	Note      string    `json:"note,omitempty"`
	Prefix    string    `json:"prefix,omitempty"`
	IndexPath string    `json:"index_path,omitempty"`
	Checksum  string    `json:"checksum,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}
