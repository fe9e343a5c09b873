// Package sheets implements the contact ledger on a Google Sheets worksheet.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/chatrelay/chatrelay/internal/config"
)

// Worksheet columns: A phone number, B name, C thread id, D chat status.
const (
	colPhone  = 0
	colName   = 1
	colThread = 2
	colStatus = 3
)

// Client is a Ledger backed by a Google spreadsheet: one worksheet of
// contact rows plus an append-only message transcript worksheet.
type Client struct {
	svc           *sheets.Service
	spreadsheetID string
	worksheet     string
	messagesSheet string
	logger        *slog.Logger
}

// New creates a sheets ledger client from service-account credentials.
func New(ctx context.Context, log *slog.Logger, cfg config.SheetsConfig) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	worksheet := strings.TrimSpace(cfg.Worksheet)
	if worksheet == "" {
		worksheet = config.DefaultSheetsWorksheet
	}
	messagesSheet := strings.TrimSpace(cfg.MessagesWorksheet)
	if messagesSheet == "" {
		messagesSheet = config.DefaultSheetsMsgSheet
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		worksheet:     worksheet,
		messagesSheet: messagesSheet,
		logger:        log.With(slog.String("service", "sheets_ledger")),
	}, nil
}

// UpsertContact writes or updates the contact row keyed by phone number.
func (c *Client) UpsertContact(ctx context.Context, phoneNumber, name string) error {
	row, values, err := c.findRow(ctx, phoneNumber)
	if err != nil {
		return err
	}
	if row < 0 {
		return c.appendRow(ctx, []any{phoneNumber, name, "", ""})
	}
	values[colName] = name
	return c.updateRow(ctx, row, values)
}

// SetThreadID records the provider thread reference for a contact.
func (c *Client) SetThreadID(ctx context.Context, phoneNumber, threadID string) error {
	return c.setColumn(ctx, phoneNumber, colThread, threadID)
}

// SetChatStatus records the live-chat status for a contact.
func (c *Client) SetChatStatus(ctx context.Context, phoneNumber, status string) error {
	return c.setColumn(ctx, phoneNumber, colStatus, status)
}

// AppendMessage adds one transcript row to the messages worksheet. Rows are
// append-only; columns are timestamp, phone number, role, content.
func (c *Client) AppendMessage(ctx context.Context, phoneNumber, role, content string) error {
	rng := fmt.Sprintf("%s!A:D", c.messagesSheet)
	row := []any{time.Now().UTC().Format(time.RFC3339), phoneNumber, role, content}
	_, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, rng, &sheets.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append transcript row: %w", err)
	}
	return nil
}

func (c *Client) setColumn(ctx context.Context, phoneNumber string, col int, value string) error {
	row, values, err := c.findRow(ctx, phoneNumber)
	if err != nil {
		return err
	}
	if row < 0 {
		fresh := []any{phoneNumber, "", "", ""}
		fresh[col] = value
		return c.appendRow(ctx, fresh)
	}
	values[col] = value
	return c.updateRow(ctx, row, values)
}

// findRow returns the 1-based sheet row for the phone number and its padded
// values, or -1 when absent.
func (c *Client) findRow(ctx context.Context, phoneNumber string) (int, []any, error) {
	rng := fmt.Sprintf("%s!A:D", c.worksheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return -1, nil, fmt.Errorf("read ledger worksheet: %w", err)
	}
	phoneNumber = strings.TrimSpace(phoneNumber)
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if cell, ok := row[colPhone].(string); ok && strings.TrimSpace(cell) == phoneNumber {
			padded := make([]any, 4)
			copy(padded, row)
			for j := range padded {
				if padded[j] == nil {
					padded[j] = ""
				}
			}
			return i + 1, padded, nil
		}
	}
	return -1, nil, nil
}

func (c *Client) appendRow(ctx context.Context, values []any) error {
	rng := fmt.Sprintf("%s!A:D", c.worksheet)
	_, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, rng, &sheets.ValueRange{Values: [][]any{values}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}
	return nil
}

func (c *Client) updateRow(ctx context.Context, row int, values []any) error {
	rng := fmt.Sprintf("%s!A%d:D%d", c.worksheet, row, row)
	_, err := c.svc.Spreadsheets.Values.
		Update(c.spreadsheetID, rng, &sheets.ValueRange{Values: [][]any{values}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update ledger row %d: %w", row, err)
	}
	return nil
}
