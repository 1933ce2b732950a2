package models

import "time"

// JournalEntry is one recorded change to a stored file.
type JournalEntry struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	Op       Op        `json:"op"`
	Size     int64     `json:"size"`
	Checksum string    `json:"checksum,omitempty"`
	Source   string    `json:"source"`
	At       time.Time `json:"at"`
}
