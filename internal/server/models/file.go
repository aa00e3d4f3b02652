// Package models defines server-side data models persisted in the database.
package models

import (
	"fmt"
	"time"
)

// Status is the processing state of a FileRecord.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusUploaded, StatusPending, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether no automatic transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Claimable reports whether a worker run may pick the record up.
func (s Status) Claimable() bool {
	return s == StatusUploaded || s == StatusPending || s == StatusProcessing
}

// FileRecord is one uploaded asset and its extraction lifecycle.
type FileRecord struct {
	ID           string
	OwnerID      string
	StorageKey   string
	PublicURL    string
	MediaType    string
	OriginalName string
	Status       Status

	// ExtractedText is set iff Status is completed.
	ExtractedText *string
	TokensUsed    *int64
	// Error is set iff Status is error.
	Error *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CheckInvariant verifies the text/error pairing with the status.
func (r *FileRecord) CheckInvariant() error {
	if (r.Status == StatusCompleted) != (r.ExtractedText != nil) {
		return fmt.Errorf("record %s: status %s with extracted text set=%t", r.ID, r.Status, r.ExtractedText != nil)
	}
	if (r.Status == StatusError) != (r.Error != nil) {
		return fmt.Errorf("record %s: status %s with error set=%t", r.ID, r.Status, r.Error != nil)
	}
	return nil
}

// Outcome is what a processing attempt writes back in a single update.
type Outcome struct {
	Status     Status
	Text       *string
	TokensUsed *int64
	Error      *string
}

// CompletedOutcome builds a successful outcome.
func CompletedOutcome(text string, tokens int64) Outcome {
	return Outcome{Status: StatusCompleted, Text: &text, TokensUsed: &tokens}
}

// ErrorOutcome builds a failed outcome.
func ErrorOutcome(msg string) Outcome {
	return Outcome{Status: StatusError, Error: &msg}
}

// Apply copies the outcome onto r.
func (o Outcome) Apply(r *FileRecord) {
	r.Status = o.Status
	r.ExtractedText = o.Text
	r.TokensUsed = o.TokensUsed
	r.Error = o.Error
}
