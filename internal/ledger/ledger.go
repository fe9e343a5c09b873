// Package ledger defines the secondary contact ledger projection. The
// relational store is authoritative; ledger writes are best-effort and must
// never block the message pipeline.
package ledger

import "context"

// Ledger mirrors contact-level state into an external spreadsheet-like store.
type Ledger interface {
	// UpsertContact records a contact row, updating the name when the row
	// already exists.
	UpsertContact(ctx context.Context, phoneNumber, name string) error
	// SetThreadID records the provider thread reference for a contact.
	SetThreadID(ctx context.Context, phoneNumber, threadID string) error
	// SetChatStatus records the live-chat status for a contact.
	SetChatStatus(ctx context.Context, phoneNumber, status string) error
	// AppendMessage records one transcript entry for a contact.
	AppendMessage(ctx context.Context, phoneNumber, role, content string) error
}

// Nop is a Ledger that records nothing. Used when no spreadsheet is
// configured.
type Nop struct{}

func (Nop) UpsertContact(context.Context, string, string) error { return nil }
func (Nop) SetThreadID(context.Context, string, string) error   { return nil }
func (Nop) SetChatStatus(context.Context, string, string) error { return nil }

func (Nop) AppendMessage(context.Context, string, string, string) error { return nil }
