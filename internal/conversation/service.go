package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatrelay/chatrelay/internal/contact"
	dbpkg "github.com/chatrelay/chatrelay/internal/db"
	"github.com/chatrelay/chatrelay/internal/ledger"
)

const (
	ledgerRetries    = 3
	ledgerRetryDelay = 2 * time.Second
	ledgerTimeout    = 30 * time.Second
)

// Service resolves and mutates conversations. The Postgres pool is the
// authoritative store; the ledger is a best-effort projection updated after
// every primary write.
type Service struct {
	pool   *pgxpool.Pool
	ledger ledger.Ledger
	logger *slog.Logger

	// sleep is swapped in tests to avoid real retry delays.
	sleep func(time.Duration)
}

// NewService creates a conversation service. A nil ledger disables the
// projection.
func NewService(log *slog.Logger, pool *pgxpool.Pool, led ledger.Ledger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if led == nil {
		led = ledger.Nop{}
	}
	return &Service{
		pool:   pool,
		ledger: led,
		logger: log.With(slog.String("service", "conversation")),
		sleep:  time.Sleep,
	}
}

// ResolveOrCreate returns the active conversation for the contact, creating
// one when absent. The partial unique index on (contact_id) WHERE status =
// 'active' makes concurrent first-contact events collapse onto a single row.
func (s *Service) ResolveOrCreate(ctx context.Context, c contact.Contact) (Conversation, error) {
	const query = `
		INSERT INTO conversations (contact_id, mode, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (contact_id) WHERE status = 'active' DO UPDATE
		SET updated_at = now()
		RETURNING id, contact_id, thread_id, mode, status, metadata, opened, created_at, updated_at`

	conv, err := s.scanRow(ctx, query, c.ID, ModeAI, StatusActive)
	if err != nil {
		return Conversation{}, fmt.Errorf("resolve conversation for contact %s: %w", c.ID, err)
	}

	s.projectToLedger("upsert contact", c.PhoneNumber, func(ctx context.Context) error {
		return s.ledger.UpsertContact(ctx, c.PhoneNumber, c.Name)
	})
	return conv, nil
}

// GetByContactPhone returns the active conversation for a phone number.
func (s *Service) GetByContactPhone(ctx context.Context, phoneNumber string) (Conversation, error) {
	const query = `
		SELECT c.id, c.contact_id, c.thread_id, c.mode, c.status, c.metadata, c.opened, c.created_at, c.updated_at
		FROM conversations c
		JOIN contacts ct ON ct.id = c.contact_id
		WHERE ct.phone_number = $1 AND c.status = 'active'`

	conv, err := s.scanRow(ctx, query, strings.TrimSpace(phoneNumber))
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation for %s: %w", phoneNumber, err)
	}
	return conv, nil
}

// SetThreadID binds the provider thread reference to the conversation and
// mirrors it to the ledger. The thread reference is set once; reassignment
// of a non-empty thread is rejected.
func (s *Service) SetThreadID(ctx context.Context, conversationID, phoneNumber, threadID string) error {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return fmt.Errorf("thread id is required")
	}
	const query = `
		UPDATE conversations
		SET thread_id = $2, updated_at = now()
		WHERE id = $1 AND (thread_id IS NULL OR thread_id = '' OR thread_id = $2)`

	tag, err := s.pool.Exec(ctx, query, conversationID, threadID)
	if err != nil {
		return fmt.Errorf("set thread id on conversation %s: %w", conversationID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s already has a different thread", conversationID)
	}

	s.projectToLedger("set thread id", phoneNumber, func(ctx context.Context) error {
		return s.ledger.SetThreadID(ctx, phoneNumber, threadID)
	})
	return nil
}

// SetMode switches the conversation between AI and human handling.
func (s *Service) SetMode(ctx context.Context, conversationID, phoneNumber, mode string) error {
	if !ValidMode(mode) {
		return fmt.Errorf("invalid mode %q", mode)
	}
	const query = `UPDATE conversations SET mode = $2, updated_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, conversationID, mode); err != nil {
		return fmt.Errorf("set mode on conversation %s: %w", conversationID, err)
	}

	status := ""
	if mode == ModeHuman {
		status = "Live Chat"
	}
	s.projectToLedger("set chat status", phoneNumber, func(ctx context.Context) error {
		return s.ledger.SetChatStatus(ctx, phoneNumber, status)
	})
	return nil
}

// SetStatus switches the conversation lifecycle status.
func (s *Service) SetStatus(ctx context.Context, conversationID, status string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}
	const query = `UPDATE conversations SET status = $2, updated_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, conversationID, status); err != nil {
		return fmt.Errorf("set status on conversation %s: %w", conversationID, err)
	}
	return nil
}

// MarkOpened flips the opened flag once the first reply has gone out.
func (s *Service) MarkOpened(ctx context.Context, conversationID string) error {
	const query = `UPDATE conversations SET opened = true, updated_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, conversationID); err != nil {
		return fmt.Errorf("mark conversation %s opened: %w", conversationID, err)
	}
	return nil
}

// projectToLedger runs a ledger write asynchronously with bounded retries.
// The primary store has already committed; a ledger that never catches up is
// a warning, not an error.
func (s *Service) projectToLedger(op, phoneNumber string, fn func(context.Context) error) {
	if _, isNop := s.ledger.(ledger.Nop); isNop {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ledgerTimeout)
		defer cancel()

		var err error
		for attempt := 1; attempt <= ledgerRetries; attempt++ {
			if err = fn(ctx); err == nil {
				return
			}
			if attempt < ledgerRetries {
				s.sleep(ledgerRetryDelay)
			}
		}
		s.logger.Warn("ledger projection failed, primary store remains authoritative",
			slog.String("op", op),
			slog.String("phone_number", phoneNumber),
			slog.Any("error", err))
	}()
}

func (s *Service) scanRow(ctx context.Context, query string, args ...any) (Conversation, error) {
	var (
		out      Conversation
		threadID pgtype.Text
		metadata []byte
	)
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&out.ID,
		&out.ContactID,
		&threadID,
		&out.Mode,
		&out.Status,
		&metadata,
		&out.Opened,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return Conversation{}, err
	}
	out.ThreadID = dbpkg.TextToString(threadID)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &out.Metadata); err != nil {
			s.logger.Warn("parse conversation metadata failed", slog.String("conversation_id", out.ID), slog.Any("error", err))
		}
	}
	return out, nil
}
