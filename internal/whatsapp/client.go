package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chatrelay/chatrelay/internal/config"
)

const defaultTimeout = 30 * time.Second

// Client calls the Graph API for one business phone number.
type Client struct {
	baseURL       string
	phoneNumberID string
	accessToken   string
	verifyToken   string
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewClient creates a Graph API client from the WhatsApp configuration.
func NewClient(log *slog.Logger, cfg config.WhatsAppConfig) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.AccessToken) == "" || strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, fmt.Errorf("whatsapp access token and phone number id are required")
	}
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = config.DefaultGraphAPIVersion
	}
	return &Client{
		baseURL:       "https://graph.facebook.com/" + version,
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		verifyToken:   cfg.VerifyToken,
		httpClient:    &http.Client{Timeout: defaultTimeout},
		logger:        log.With(slog.String("service", "whatsapp")),
	}, nil
}

// VerifyWebhook answers the channel's verification handshake, returning the
// challenge to echo back.
func (c *Client) VerifyWebhook(mode, token, challenge string) (string, error) {
	if mode != "subscribe" || token != c.verifyToken {
		return "", fmt.Errorf("invalid verification token")
	}
	return challenge, nil
}

// Send delivers a text message to a phone number. Errors are returned to the
// caller for logging; the channel is not retried here.
func (c *Client) Send(ctx context.Context, to, text string) (SendResult, error) {
	to = strings.TrimSpace(strings.TrimPrefix(to, "+"))
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text": map[string]any{
			"preview_url": true,
			"body":        text,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal send payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendResult{}, fmt.Errorf("read send response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SendResult{}, fmt.Errorf("send message to %s: status %d: %s", to, resp.StatusCode, truncate(string(respBody), 300))
	}

	var result SendResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return SendResult{}, fmt.Errorf("parse send response: %w", err)
	}
	return result, nil
}

// DownloadMedia fetches media bytes by id. The Graph API requires two steps:
// look up the short-lived media URL, then fetch it with the same token.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	lookupURL := fmt.Sprintf("%s/%s", c.baseURL, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("look up media url: %w", err)
	}
	defer resp.Body.Close()

	lookupBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read media lookup response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("look up media %s: status %d: %s", mediaID, resp.StatusCode, truncate(string(lookupBody), 300))
	}

	var lookup struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.Unmarshal(lookupBody, &lookup); err != nil {
		return nil, "", fmt.Errorf("parse media lookup response: %w", err)
	}
	if lookup.URL == "" {
		return nil, "", fmt.Errorf("media %s has no download url", mediaID)
	}

	mediaReq, err := http.NewRequestWithContext(ctx, http.MethodGet, lookup.URL, nil)
	if err != nil {
		return nil, "", err
	}
	mediaReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	mediaResp, err := c.httpClient.Do(mediaReq)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	defer mediaResp.Body.Close()

	if mediaResp.StatusCode < 200 || mediaResp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("download media %s: status %d", mediaID, mediaResp.StatusCode)
	}
	data, err := io.ReadAll(mediaResp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read media body: %w", err)
	}
	return data, lookup.MimeType, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
