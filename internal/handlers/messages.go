package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatrelay/chatrelay/internal/message"
)

// MessagesHandler exposes read access to conversation history.
type MessagesHandler struct {
	logger   *slog.Logger
	messages *message.Service
}

func NewMessagesHandler(log *slog.Logger, messages *message.Service) *MessagesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MessagesHandler{
		logger:   log.With(slog.String("handler", "messages")),
		messages: messages,
	}
}

func (h *MessagesHandler) Register(e *echo.Echo) {
	e.GET("/conversations/:id/messages", h.List)
}

func (h *MessagesHandler) List(c echo.Context) error {
	conversationID := c.Param("id")
	msgs, err := h.messages.ListByConversation(c.Request().Context(), conversationID)
	if err != nil {
		h.logger.Error("list messages failed", slog.String("conversation_id", conversationID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return c.JSON(http.StatusOK, msgs)
}
