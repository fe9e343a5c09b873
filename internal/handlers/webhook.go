package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/chatrelay/chatrelay/internal/ingest"
	"github.com/chatrelay/chatrelay/internal/whatsapp"
)

// processTimeout bounds background processing of one webhook delivery.
const processTimeout = 10 * time.Minute

// Verifier answers the channel's webhook verification handshake.
type Verifier interface {
	VerifyWebhook(mode, token, challenge string) (string, error)
}

// WebhookHandler receives WhatsApp webhook deliveries. It always returns
// success to the transport: the channel retries on errors, and a retry storm
// is worse than a silently dropped event.
type WebhookHandler struct {
	logger    *slog.Logger
	verifier  Verifier
	processor *ingest.Processor
}

func NewWebhookHandler(log *slog.Logger, verifier Verifier, processor *ingest.Processor) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:    log.With(slog.String("handler", "whatsapp_webhook")),
		verifier:  verifier,
		processor: processor,
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/whatsapp/webhook", h.Verify)
	e.POST("/whatsapp/webhook", h.Receive)
}

// Verify handles the challenge/response handshake that precedes delivery.
func (h *WebhookHandler) Verify(c echo.Context) error {
	challenge, err := h.verifier.VerifyWebhook(
		c.QueryParam("hub.mode"),
		c.QueryParam("hub.verify_token"),
		c.QueryParam("hub.challenge"),
	)
	if err != nil {
		h.logger.Warn("webhook verification rejected", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	return c.String(http.StatusOK, challenge)
}

// Receive acknowledges the delivery immediately and processes it in the
// background with its own timeout context.
func (h *WebhookHandler) Receive(c echo.Context) error {
	var payload whatsapp.WebhookPayload
	if err := c.Bind(&payload); err != nil {
		// Malformed payloads are logged and acknowledged, never errored.
		h.logger.Warn("malformed webhook payload", slog.Any("error", err))
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	deliveryID := uuid.NewString()
	h.logger.Debug("webhook delivery accepted",
		slog.String("delivery_id", deliveryID),
		slog.Int("entries", len(payload.Entry)))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		h.processor.Process(ctx, payload)
		h.logger.Debug("webhook delivery processed", slog.String("delivery_id", deliveryID))
	}()

	return c.JSON(http.StatusOK, map[string]string{"status": "received"})
}
