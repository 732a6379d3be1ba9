package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/safar/marketplace-settlement/internal/config"
)

var ErrSMSRejected = errors.New("sms gateway rejected message")

// SMSClient posts messages to a form-encoded SMS gateway.
type SMSClient struct {
	cfg  config.SMSConfig
	http *http.Client
}

func NewSMSClient(cfg config.SMSConfig) *SMSClient {
	return &SMSClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled is false when no API key is configured.
func (c *SMSClient) Enabled() bool {
	return c != nil && c.cfg.APIKey != ""
}

func (c *SMSClient) Send(ctx context.Context, phone, message string) error {
	if !c.Enabled() {
		log.Printf("sms: disabled, dropping message to %s", phone)
		return nil
	}
	if phone == "" || message == "" {
		return fmt.Errorf("sms: phone and message are required")
	}

	form := url.Values{
		"key":      {c.cfg.APIKey},
		"campaign": {c.cfg.Campaign},
		"routeid":  {c.cfg.RouteID},
		"type":     {c.cfg.Type},
		"contacts": {phone},
		"msg":      {message},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read sms response: %w", err)
	}

	if !accepted(resp.StatusCode, body) {
		return fmt.Errorf("%w: status %d: %s", ErrSMSRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	log.Printf("sms: sent to %s", phone)
	return nil
}

// accepted treats a 200 whose body reports success (JSON status or a
// plain-text "success"/"sent") as delivered to the gateway.
func accepted(status int, body []byte) bool {
	if status != http.StatusOK {
		return false
	}

	var parsed struct {
		Status string `json:"status"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Status == "success" {
		return true
	}

	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "success") || strings.Contains(lower, "sent")
}
