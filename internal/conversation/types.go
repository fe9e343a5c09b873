// Package conversation owns per-contact conversation state across the
// relational store and the secondary contact ledger.
package conversation

import "time"

// Handling mode constants.
const (
	ModeAI    = "ai"
	ModeHuman = "human"
)

// Lifecycle status constants.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Conversation is the per-contact conversation container. ThreadID is empty
// until the first AI run produces a provider thread.
type Conversation struct {
	ID        string         `json:"id"`
	ContactID string         `json:"contact_id"`
	ThreadID  string         `json:"thread_id,omitempty"`
	Mode      string         `json:"mode"`
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Opened    bool           `json:"opened"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ValidMode reports whether mode is a recognized handling mode.
func ValidMode(mode string) bool {
	return mode == ModeAI || mode == ModeHuman
}

// ValidStatus reports whether status is a recognized lifecycle status.
func ValidStatus(status string) bool {
	return status == StatusActive || status == StatusInactive
}
