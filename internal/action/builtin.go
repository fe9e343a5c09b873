package action

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chatrelay/chatrelay/internal/conversation"
	"github.com/chatrelay/chatrelay/internal/whatsapp"
)

// Built-in function keys.
const (
	FuncEnableLiveChat  = "enable_live_chat"
	FuncDisableLiveChat = "disable_live_chat"
	FuncAlertAdmin      = "alert_admin"
)

// AlertSender delivers admin alerts over the messaging channel.
type AlertSender interface {
	Send(ctx context.Context, to, text string) (whatsapp.SendResult, error)
}

// RegisterBuiltins installs the in-process tool functions: live-chat handover
// in both directions and an admin alert sent to the configured number.
func RegisterBuiltins(r *Registry, log *slog.Logger, conversations *conversation.Service, alerts AlertSender, adminNumber string) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("service", "actions"))

	r.RegisterFunc(FuncEnableLiveChat, func(ctx context.Context, args map[string]any) (any, error) {
		phone, err := phoneArg(args)
		if err != nil {
			return nil, err
		}
		conv, err := conversations.GetByContactPhone(ctx, phone)
		if err != nil {
			return nil, fmt.Errorf("no active conversation for %s", phone)
		}
		if err := conversations.SetMode(ctx, conv.ID, phone, conversation.ModeHuman); err != nil {
			return nil, err
		}
		log.Info("live chat enabled", slog.String("phone_number", phone))
		return map[string]any{
			"status":  "success",
			"message": "Live chat mode has been enabled. Messages will now be handled by a human agent.",
		}, nil
	})

	r.RegisterFunc(FuncDisableLiveChat, func(ctx context.Context, args map[string]any) (any, error) {
		phone, err := phoneArg(args)
		if err != nil {
			return nil, err
		}
		conv, err := conversations.GetByContactPhone(ctx, phone)
		if err != nil {
			return nil, fmt.Errorf("no active conversation for %s", phone)
		}
		if err := conversations.SetMode(ctx, conv.ID, phone, conversation.ModeAI); err != nil {
			return nil, err
		}
		log.Info("live chat disabled", slog.String("phone_number", phone))
		return map[string]any{
			"status":  "success",
			"message": "Live chat mode has been disabled. Messages will now be handled by the AI assistant.",
		}, nil
	})

	r.RegisterFunc(FuncAlertAdmin, func(ctx context.Context, args map[string]any) (any, error) {
		msg, _ := args["message"].(string)
		if strings.TrimSpace(msg) == "" {
			return nil, fmt.Errorf("message argument is required")
		}
		if alerts == nil || strings.TrimSpace(adminNumber) == "" {
			return nil, fmt.Errorf("no admin number configured")
		}
		severity, _ := args["severity"].(string)
		severity = strings.ToUpper(strings.TrimSpace(severity))
		if severity == "" {
			severity = "INFO"
		}
		text := fmt.Sprintf("ALERT [%s]\nTime: %s\n%s",
			severity, time.Now().UTC().Format(time.RFC3339), msg)
		if _, err := alerts.Send(ctx, adminNumber, text); err != nil {
			return nil, fmt.Errorf("send admin alert: %w", err)
		}
		log.Info("admin alert sent", slog.String("severity", severity))
		return map[string]any{
			"status":  "success",
			"message": "Alert delivered to the admin number.",
		}, nil
	})
}

func phoneArg(args map[string]any) (string, error) {
	raw, _ := args["phone_number"].(string)
	phone := strings.TrimSpace(raw)
	if phone == "" {
		return "", fmt.Errorf("phone_number argument is required")
	}
	return phone, nil
}
