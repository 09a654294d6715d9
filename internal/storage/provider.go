// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/mocsync/internal/models"

// Provider is the interface for vault file operations.
//
// Paths may be relative to the vault root or absolute paths inside it.
type Provider interface {
	// Root returns the absolute vault root.
	Root() string
	// List returns every .md file under dir.
	List(dir string) ([]models.NoteFile, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Append adds data to the end of an existing file.
	Append(path string, data []byte) error
	// Write atomically replaces the content of path.
	Write(path string, content []byte) error
	// Exists reports whether path currently refers to a regular file.
	Exists(path string) bool
}
