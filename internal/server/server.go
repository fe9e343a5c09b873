package server

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/chatrelay/chatrelay/internal/handlers"
)

type Server struct {
	echo *echo.Echo
	addr string
}

func NewServer(
	addr string,
	log *slog.Logger,
	pingHandler *handlers.PingHandler,
	webhookHandler *handlers.WebhookHandler,
	chatStatusHandler *handlers.ChatStatusHandler,
	actionsHandler *handlers.ActionsHandler,
	messagesHandler *handlers.MessagesHandler,
) *Server {
	if addr == "" {
		addr = ":8080"
	}
	if log == nil {
		log = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		},
	}))

	if pingHandler != nil {
		pingHandler.Register(e)
	}
	if webhookHandler != nil {
		webhookHandler.Register(e)
	}
	if chatStatusHandler != nil {
		chatStatusHandler.Register(e)
	}
	if actionsHandler != nil {
		actionsHandler.Register(e)
	}
	if messagesHandler != nil {
		messagesHandler.Register(e)
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
