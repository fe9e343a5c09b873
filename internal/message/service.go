// Package message persists conversation history. Messages are append-only
// and never mutated after creation.
package message

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/chatrelay/chatrelay/internal/db"
	"github.com/chatrelay/chatrelay/internal/ledger"
)

const (
	ledgerRetries    = 3
	ledgerRetryDelay = 2 * time.Second
	ledgerTimeout    = 30 * time.Second
)

// Author role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleAdmin     = "admin"
	RoleSystem    = "system"
)

// Content type constants.
const (
	ContentText  = "text"
	ContentImage = "image"
)

// Message is one entry of a conversation's history.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	ContentType    string    `json:"content_type"`
	Role           string    `json:"role"`
	Status         string    `json:"status"`
	Remark         string    `json:"remark,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AppendInput describes one message to persist. PhoneNumber is optional; when
// set the message is also mirrored to the transcript ledger.
type AppendInput struct {
	ConversationID string
	PhoneNumber    string
	Content        string
	ContentType    string
	Role           string
	Status         string
	Remark         string
}

// Service persists and reads conversation messages. The pgx pool is the
// authoritative store; the ledger transcript is a best-effort projection.
type Service struct {
	pool   *pgxpool.Pool
	ledger ledger.Ledger
	logger *slog.Logger

	// sleep is swapped in tests to avoid real retry delays.
	sleep func(time.Duration)
}

// NewService creates a message service. A nil ledger disables the transcript
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
		logger: log.With(slog.String("service", "message")),
		sleep:  time.Sleep,
	}
}

// Append inserts a single message.
func (s *Service) Append(ctx context.Context, input AppendInput) (Message, error) {
	if strings.TrimSpace(input.ConversationID) == "" {
		return Message{}, fmt.Errorf("conversation id is required")
	}
	if input.Role == "" {
		return Message{}, fmt.Errorf("role is required")
	}
	contentType := input.ContentType
	if contentType == "" {
		contentType = ContentText
	}
	status := input.Status
	if status == "" {
		status = "received"
	}

	const query = `
		INSERT INTO messages (conversation_id, content, content_type, role, status, remark)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, conversation_id, content, content_type, role, status, remark, created_at`

	var (
		out    Message
		remark pgtype.Text
	)
	err := s.pool.QueryRow(ctx, query,
		input.ConversationID, input.Content, contentType, input.Role, status, dbpkg.ToPgText(input.Remark),
	).Scan(&out.ID, &out.ConversationID, &out.Content, &out.ContentType, &out.Role, &out.Status, &remark, &out.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	out.Remark = dbpkg.TextToString(remark)

	if input.PhoneNumber != "" {
		s.projectToLedger(input.PhoneNumber, out.Role, out.Content)
	}
	return out, nil
}

// projectToLedger mirrors one transcript entry asynchronously with bounded
// retries. The primary store has already committed; a ledger that never
// catches up is a warning, not an error.
func (s *Service) projectToLedger(phoneNumber, role, content string) {
	if _, isNop := s.ledger.(ledger.Nop); isNop {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ledgerTimeout)
		defer cancel()

		var err error
		for attempt := 1; attempt <= ledgerRetries; attempt++ {
			if err = s.ledger.AppendMessage(ctx, phoneNumber, role, content); err == nil {
				return
			}
			if attempt < ledgerRetries {
				s.sleep(ledgerRetryDelay)
			}
		}
		s.logger.Warn("transcript projection failed, primary store remains authoritative",
			slog.String("phone_number", phoneNumber),
			slog.String("role", role),
			slog.Any("error", err))
	}()
}

// ListByConversation returns a conversation's messages oldest first.
func (s *Service) ListByConversation(ctx context.Context, conversationID string) ([]Message, error) {
	const query = `
		SELECT id, conversation_id, content, content_type, role, status, remark, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m      Message
			remark pgtype.Text
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &m.ContentType, &m.Role, &m.Status, &remark, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Remark = dbpkg.TextToString(remark)
		out = append(out, m)
	}
	return out, rows.Err()
}
