// Package contact persists WhatsApp contacts keyed by phone number.
package contact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Contact is a messaging-channel contact.
type Contact struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Service provides contact persistence.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a contact service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "contact")),
	}
}

// ResolveOrCreate returns the contact for the given phone number, creating it
// when absent. The phone number's uniqueness constraint makes this safe under
// concurrent first-contact events: both inserts land on the same row.
func (s *Service) ResolveOrCreate(ctx context.Context, phoneNumber, name string) (Contact, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return Contact{}, fmt.Errorf("phone number is required")
	}
	name = strings.TrimSpace(name)

	const query = `
		INSERT INTO contacts (phone_number, name)
		VALUES ($1, $2)
		ON CONFLICT (phone_number) DO UPDATE
		SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE contacts.name END
		RETURNING id, phone_number, name, created_at`

	var out Contact
	err := s.pool.QueryRow(ctx, query, phoneNumber, name).
		Scan(&out.ID, &out.PhoneNumber, &out.Name, &out.CreatedAt)
	if err != nil {
		return Contact{}, fmt.Errorf("resolve contact %s: %w", phoneNumber, err)
	}
	return out, nil
}

// GetByPhone returns the contact with the given phone number.
func (s *Service) GetByPhone(ctx context.Context, phoneNumber string) (Contact, error) {
	const query = `
		SELECT id, phone_number, name, created_at
		FROM contacts
		WHERE phone_number = $1`

	var out Contact
	err := s.pool.QueryRow(ctx, query, strings.TrimSpace(phoneNumber)).
		Scan(&out.ID, &out.PhoneNumber, &out.Name, &out.CreatedAt)
	if err != nil {
		return Contact{}, fmt.Errorf("get contact %s: %w", phoneNumber, err)
	}
	return out, nil
}
