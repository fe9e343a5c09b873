package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/chatrelay/chatrelay/internal/contact"
	"github.com/chatrelay/chatrelay/internal/conversation"
	"github.com/chatrelay/chatrelay/internal/db"
)

// ChatStatusHandler exposes out-of-band control over a conversation's
// handling mode and lifecycle status (e.g. forcing human handling from an
// operator console).
type ChatStatusHandler struct {
	logger        *slog.Logger
	conversations *conversation.Service
	contacts      *contact.Service
	validate      *validator.Validate
}

func NewChatStatusHandler(log *slog.Logger, conversations *conversation.Service, contacts *contact.Service) *ChatStatusHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ChatStatusHandler{
		logger:        log.With(slog.String("handler", "chat_status")),
		conversations: conversations,
		contacts:      contacts,
		validate:      validator.New(),
	}
}

func (h *ChatStatusHandler) Register(e *echo.Echo) {
	e.POST("/whatsapp/chat-status", h.Set)
	e.GET("/whatsapp/chat-status/:phone", h.Get)
	e.DELETE("/whatsapp/chat-status/:phone", h.Clear)
	e.PUT("/conversations/:id/status", h.SetConversationStatus)
}

type setChatStatusRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
	Status      string `json:"status" validate:"required,oneof=ai human"`
}

// Set switches the conversation's handling mode.
func (h *ChatStatusHandler) Set(c echo.Context) error {
	var req setChatStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	conv, err := h.conversations.GetByContactPhone(ctx, req.PhoneNumber)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active conversation for contact")
	}
	if err := h.conversations.SetMode(ctx, conv.ID, req.PhoneNumber, req.Status); err != nil {
		h.logger.Error("set chat status failed", slog.String("phone_number", req.PhoneNumber), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update chat status")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"phone_number": req.PhoneNumber,
		"mode":         req.Status,
	})
}

// Get returns the conversation's current handling mode.
func (h *ChatStatusHandler) Get(c echo.Context) error {
	phone := c.Param("phone")
	ctx := c.Request().Context()
	conv, err := h.conversations.GetByContactPhone(ctx, phone)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active conversation for contact")
	}
	name := ""
	if ct, err := h.contacts.GetByPhone(ctx, phone); err == nil {
		name = ct.Name
	}
	return c.JSON(http.StatusOK, map[string]string{
		"phone_number": phone,
		"name":         name,
		"mode":         conv.Mode,
		"status":       conv.Status,
	})
}

// Clear resets the conversation to AI handling.
func (h *ChatStatusHandler) Clear(c echo.Context) error {
	phone := c.Param("phone")
	ctx := c.Request().Context()
	conv, err := h.conversations.GetByContactPhone(ctx, phone)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active conversation for contact")
	}
	if err := h.conversations.SetMode(ctx, conv.ID, phone, conversation.ModeAI); err != nil {
		h.logger.Error("clear chat status failed", slog.String("phone_number", phone), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to reset chat status")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"phone_number": phone,
		"mode":         conversation.ModeAI,
	})
}

type setConversationStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

// SetConversationStatus switches a conversation between active and inactive.
func (h *ChatStatusHandler) SetConversationStatus(c echo.Context) error {
	id := c.Param("id")
	if _, err := db.ParseUUID(id); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid conversation id")
	}
	var req setConversationStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.conversations.SetStatus(c.Request().Context(), id, req.Status); err != nil {
		h.logger.Error("set conversation status failed", slog.String("conversation_id", id), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update conversation status")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"conversation_id": id,
		"status":          req.Status,
	})
}
