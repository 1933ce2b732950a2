package api

import "github.com/starford/wstore/internal/models"

// Status messages written as plain-text bodies.
const (
	MsgCreated         = "File created"
	MsgUpdated         = "File updated"
	MsgDeleted         = "File deleted"
	MsgNotFound        = "File not found"
	MsgAlreadyExists   = "File already exists"
	MsgInvalidPath     = "Invalid path"
	MsgPayloadTooLarge = "Payload too large"
	MsgDirectoryRead   = "Error reading directory"
)

// ListingResponse is returned for a GET on a directory.
type ListingResponse struct {
	Files []string `json:"files"`
}

// JournalResponse wraps journal entries, newest first.
type JournalResponse struct {
	Entries []models.JournalEntry `json:"entries"`
}
