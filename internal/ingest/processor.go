// Package ingest turns raw webhook events into persisted conversation turns
// and AI runs. Processing failures never surface to the transport layer.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/chatrelay/chatrelay/internal/assistant"
	"github.com/chatrelay/chatrelay/internal/contact"
	"github.com/chatrelay/chatrelay/internal/conversation"
	"github.com/chatrelay/chatrelay/internal/message"
	"github.com/chatrelay/chatrelay/internal/run"
	"github.com/chatrelay/chatrelay/internal/whatsapp"
)

// staleThreshold guards against replay of historical batches.
const staleThreshold = 24 * time.Hour

// imageAnalysisPrompt accompanies every inbound image so the assistant knows
// what to do with it.
const imageAnalysisPrompt = "Please analyze this image and describe anything relevant to the conversation, including any invoice number and payment total if present."

// ContactResolver resolves or creates the contact behind a sender identity.
type ContactResolver interface {
	ResolveOrCreate(ctx context.Context, phoneNumber, name string) (contact.Contact, error)
}

// ConversationResolver owns conversation state across both stores.
type ConversationResolver interface {
	ResolveOrCreate(ctx context.Context, c contact.Contact) (conversation.Conversation, error)
	SetThreadID(ctx context.Context, conversationID, phoneNumber, threadID string) error
	MarkOpened(ctx context.Context, conversationID string) error
}

// MessageWriter appends immutable conversation history.
type MessageWriter interface {
	Append(ctx context.Context, input message.AppendInput) (message.Message, error)
}

// Runner executes one AI turn.
type Runner interface {
	Execute(ctx context.Context, conversationID, threadID string, content []assistant.ContentBlock) (run.Result, error)
}

// MediaResolver republishes channel media to the provider.
type MediaResolver interface {
	FetchAndRepublish(ctx context.Context, mediaID string) (string, error)
}

// ReplySender is the channel's outbound send primitive.
type ReplySender interface {
	Send(ctx context.Context, to, text string) (whatsapp.SendResult, error)
}

// Deduper is the at-most-once gate per channel message id.
type Deduper interface {
	Check(id string) bool
}

// Processor is the inbound event pipeline.
type Processor struct {
	contacts      ContactResolver
	conversations ConversationResolver
	messages      MessageWriter
	runner        Runner
	media         MediaResolver
	sender        ReplySender
	dedup         Deduper
	logger        *slog.Logger
	now           func() time.Time
}

// NewProcessor wires the ingestion pipeline.
func NewProcessor(
	log *slog.Logger,
	contacts ContactResolver,
	conversations ConversationResolver,
	messages MessageWriter,
	runner Runner,
	media MediaResolver,
	sender ReplySender,
	dedup Deduper,
) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		contacts:      contacts,
		conversations: conversations,
		messages:      messages,
		runner:        runner,
		media:         media,
		sender:        sender,
		dedup:         dedup,
		logger:        log.With(slog.String("service", "ingest")),
		now:           time.Now,
	}
}

// Process walks every change in the webhook payload. Errors are logged and
// swallowed; the transport layer has already acknowledged receipt.
func (p *Processor) Process(ctx context.Context, payload whatsapp.WebhookPayload) {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			p.processValue(ctx, change.Value)
		}
	}
}

func (p *Processor) processValue(ctx context.Context, value whatsapp.Value) {
	// Status-type events (delivery/read receipts) terminate the pipeline.
	if len(value.Statuses) > 0 {
		for _, st := range value.Statuses {
			p.logger.Debug("status update received",
				slog.String("message_id", st.ID),
				slog.String("recipient", st.RecipientID),
				slog.String("status", st.Status))
		}
		return
	}
	if len(value.Messages) == 0 {
		return
	}

	first := value.Messages[0]
	sender := first.From
	log := p.logger.With(slog.String("phone_number", sender))

	// Freshness: drop events older than the replay threshold.
	if err := p.checkFreshness(first); err != nil {
		log.Warn("stale event dropped", slog.String("message_id", first.ID), slog.Any("error", err))
		return
	}

	// Dedup: a single atomic test-and-set per channel message id.
	if !p.dedup.Check(first.ID) {
		log.Info("duplicate event dropped", slog.String("message_id", first.ID))
		return
	}

	senderName := ""
	if len(value.Contacts) > 0 {
		senderName = value.Contacts[0].Profile.Name
	}

	ct, err := p.contacts.ResolveOrCreate(ctx, sender, senderName)
	if err != nil {
		log.Error("resolve contact failed", slog.Any("error", err))
		return
	}
	conv, err := p.conversations.ResolveOrCreate(ctx, ct)
	if err != nil {
		log.Error("resolve conversation failed", slog.Any("error", err))
		return
	}
	log = log.With(slog.String("conversation_id", conv.ID))

	// Mode gate: human-handled conversations record the message and stop.
	if conv.Mode == conversation.ModeHuman {
		log.Info("human mode active, skipping AI turn", slog.String("message_id", first.ID))
		p.persistInbound(ctx, log, conv.ID, value.Messages)
		return
	}

	content, ok := p.assembleContent(ctx, log, ct, conv.ID, value.Messages)
	if !ok {
		return
	}
	p.persistInbound(ctx, log, conv.ID, value.Messages)

	p.runTurn(ctx, log, ct, conv, content)
}

// checkFreshness rejects events whose timestamp is too far from receipt time.
func (p *Processor) checkFreshness(msg whatsapp.Message) error {
	ts, err := strconv.ParseInt(strings.TrimSpace(msg.Timestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("unparseable timestamp %q: %w", msg.Timestamp, err)
	}
	drift := p.now().Sub(time.Unix(ts, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > staleThreshold {
		return fmt.Errorf("timestamp is %s away from receipt time", drift.Round(time.Second))
	}
	return nil
}

// assembleContent builds the turn's multimodal content blocks. Image media
// is republished through the bridge first; a bridge failure persists a
// system message and aborts the turn without an outbound send.
func (p *Processor) assembleContent(ctx context.Context, log *slog.Logger, ct contact.Contact, conversationID string, msgs []whatsapp.Message) ([]assistant.ContentBlock, bool) {
	content := []assistant.ContentBlock{
		assistant.TextBlock(fmt.Sprintf("Customer: %s, Phone: %s", ct.Name, ct.PhoneNumber)),
	}
	for _, msg := range msgs {
		switch msg.Type {
		case whatsapp.TypeText:
			if msg.Text == nil {
				continue
			}
			content = append(content, assistant.TextBlock(msg.Text.Body))

		case whatsapp.TypeImage:
			if msg.Image == nil {
				continue
			}
			fileID, err := p.media.FetchAndRepublish(ctx, msg.Image.ID)
			if err != nil {
				log.Error("media bridge failed", slog.String("media_id", msg.Image.ID), slog.Any("error", err))
				p.persistSystemError(ctx, log, conversationID, fmt.Sprintf("failed to process inbound image: %v", err))
				return nil, false
			}
			content = append(content, assistant.ImageBlock(fileID))
			content = append(content, assistant.TextBlock(imageAnalysisPrompt))
			if msg.Image.Caption != "" {
				content = append(content, assistant.TextBlock("Caption: "+msg.Image.Caption))
			}

		default:
			log.Debug("unsupported message type ignored",
				slog.String("message_id", msg.ID),
				slog.String("type", msg.Type))
		}
	}
	if len(content) <= 1 {
		log.Debug("no processable content in event")
		return nil, false
	}
	return content, true
}

// runTurn executes the AI turn and handles its outcome: reply persistence
// and outbound send on success, a system error message with no send on
// failure, and thread persistence either way.
func (p *Processor) runTurn(ctx context.Context, log *slog.Logger, ct contact.Contact, conv conversation.Conversation, content []assistant.ContentBlock) {
	result, runErr := p.runner.Execute(ctx, conv.ID, conv.ThreadID, content)

	// A freshly created thread is persisted to both stores regardless of
	// how the turn ended, so the next turn can reuse it.
	if result.ThreadID != "" && conv.ThreadID == "" {
		if err := p.conversations.SetThreadID(ctx, conv.ID, ct.PhoneNumber, result.ThreadID); err != nil {
			log.Error("persist thread reference failed",
				slog.String("thread_id", result.ThreadID),
				slog.Any("error", err))
		}
	}

	if runErr != nil {
		log.Error("ai turn failed",
			slog.String("state", string(result.State)),
			slog.String("detail", result.ErrorMsg),
			slog.Any("error", runErr))
		p.persistSystemError(ctx, log, conv.ID, fmt.Sprintf("ai turn ended in %s: %s", result.State, result.ErrorMsg))
		return
	}
	if strings.TrimSpace(result.Reply) == "" {
		log.Warn("run completed without assistant reply")
		p.persistSystemError(ctx, log, conv.ID, "run completed but produced no assistant reply")
		return
	}

	if _, err := p.messages.Append(ctx, message.AppendInput{
		ConversationID: conv.ID,
		PhoneNumber:    ct.PhoneNumber,
		Content:        result.Reply,
		ContentType:    message.ContentText,
		Role:           message.RoleAssistant,
		Status:         "sent",
	}); err != nil {
		log.Error("persist assistant message failed", slog.Any("error", err))
	}

	if _, err := p.sender.Send(ctx, ct.PhoneNumber, result.Reply); err != nil {
		log.Error("outbound send failed", slog.Any("error", err))
		return
	}
	if !conv.Opened {
		if err := p.conversations.MarkOpened(ctx, conv.ID); err != nil {
			log.Error("mark conversation opened failed", slog.Any("error", err))
		}
	}
}

// persistInbound appends the user's messages to conversation history.
func (p *Processor) persistInbound(ctx context.Context, log *slog.Logger, conversationID string, msgs []whatsapp.Message) {
	for _, msg := range msgs {
		input := message.AppendInput{
			ConversationID: conversationID,
			PhoneNumber:    msg.From,
			Role:           message.RoleUser,
			Status:         "received",
		}
		switch msg.Type {
		case whatsapp.TypeText:
			if msg.Text == nil {
				continue
			}
			input.Content = msg.Text.Body
			input.ContentType = message.ContentText
		case whatsapp.TypeImage:
			if msg.Image == nil {
				continue
			}
			input.Content = msg.Image.ID
			input.ContentType = message.ContentImage
			input.Remark = msg.Image.Caption
		default:
			continue
		}
		if _, err := p.messages.Append(ctx, input); err != nil {
			log.Error("persist inbound message failed",
				slog.String("message_id", msg.ID),
				slog.Any("error", err))
		}
	}
}

// persistSystemError records a pipeline failure as a system-authored message
// for human follow-up. The outbound send is suppressed by the callers.
func (p *Processor) persistSystemError(ctx context.Context, log *slog.Logger, conversationID, detail string) {
	if _, err := p.messages.Append(ctx, message.AppendInput{
		ConversationID: conversationID,
		Content:        detail,
		ContentType:    message.ContentText,
		Role:           message.RoleSystem,
		Status:         "error",
	}); err != nil {
		log.Error("persist system message failed", slog.Any("error", err))
	}
}
