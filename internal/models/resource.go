// Package models defines the domain types shared across wstore packages.
package models

import "time"

// Kind is the resource kind inferred at lookup time.
type Kind int

const (
	KindFile Kind = iota + 1
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Resource is what a read of a relative path yields: either file content or
// the immediate child names of a directory.
type Resource struct {
	Path        string
	Kind        Kind
	Content     []byte
	ContentType string
	Children    []string
}

// FileMetadata is a lightweight description of a stored file returned by walks.
type FileMetadata struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Op names a mutation recorded in the change journal.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

// Change describes one mutation of the storage root.
type Change struct {
	Path     string
	Op       Op
	Size     int64
	Checksum string
	Source   string
}
