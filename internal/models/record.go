package models

import "time"

// ScreenshotRecord is the payload persisted alongside an indexed vector.
// It is created exactly once on full pipeline success and never updated.
type ScreenshotRecord struct {
	ID           string    `json:"id"`
	SourceRef    ObjectRef `json:"source"`
	ProcessedRef ObjectRef `json:"processed"`
	Title        string    `json:"title,omitempty"`
	Model        string    `json:"model,omitempty"`
	InsertedAt   time.Time `json:"inserted_at"`
}
