package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/chatrelay/chatrelay/internal/action"
)

// ActionsHandler manages the durable tool catalog.
type ActionsHandler struct {
	logger   *slog.Logger
	registry *action.Registry
	validate *validator.Validate
}

func NewActionsHandler(log *slog.Logger, registry *action.Registry) *ActionsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ActionsHandler{
		logger:   log.With(slog.String("handler", "actions")),
		registry: registry,
		validate: validator.New(),
	}
}

func (h *ActionsHandler) Register(e *echo.Echo) {
	e.POST("/actions", h.Create)
	e.GET("/actions", h.List)
	e.DELETE("/actions/:name", h.Delete)
}

type createActionRequest struct {
	Name        string            `json:"name" validate:"required"`
	Description string            `json:"description"`
	Parameters  []action.Param    `json:"parameters"`
	Kind        string            `json:"kind" validate:"required,oneof=local remote"`
	FunctionKey string            `json:"function_key"`
	URL         string            `json:"url" validate:"omitempty,url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	AuthType    string            `json:"auth_type"`
	AuthKey     string            `json:"auth_key"`
}

// Create registers a new action. Duplicate names are rejected, never
// overwritten.
func (h *ActionsHandler) Create(c echo.Context) error {
	var req createActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	err := h.registry.Register(c.Request().Context(), action.Action{
		Name:        req.Name,
		Description: req.Description,
		Parameters:  req.Parameters,
		Kind:        req.Kind,
		FunctionKey: req.FunctionKey,
		URL:         req.URL,
		Method:      req.Method,
		Headers:     req.Headers,
		AuthType:    req.AuthType,
		AuthKey:     req.AuthKey,
	})
	if err != nil {
		if errors.Is(err, action.ErrDuplicateName) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		h.logger.Error("register action failed", slog.String("action", req.Name), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"name": req.Name})
}

// List returns the registered actions.
func (h *ActionsHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.registry.List())
}

// Delete removes an action by name.
func (h *ActionsHandler) Delete(c echo.Context) error {
	name := c.Param("name")
	if err := h.registry.Delete(c.Request().Context(), name); err != nil {
		if errors.Is(err, action.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		h.logger.Error("delete action failed", slog.String("action", name), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
