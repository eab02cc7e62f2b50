package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/phone"
)

const smsMaxLength = 612

// SMSChannel posts reminders to an HTTP SMS gateway.
type SMSChannel struct {
	url    string
	apiKey string
	sender string
	region string
	client *http.Client
}

// NewSMSChannel creates a gateway channel from configuration.
func NewSMSChannel(cfg config.SMSConfig) *SMSChannel {
	return &SMSChannel{
		url:    cfg.GetSMSGatewayURL(),
		apiKey: cfg.GetSMSGatewayKey(),
		sender: cfg.GetSMSSender(),
		region: phone.DefaultRegion,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type smsRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Text string `json:"text"`
	Ref  string `json:"reference,omitempty"`
}

// Send normalises the recipient to E.164 and posts the message.
func (c *SMSChannel) Send(ctx context.Context, msg domain.Message) error {
	to, ok := phone.ParseE164(msg.Recipient, c.region)
	if !ok {
		return fmt.Errorf("invalid phone number %q", msg.Recipient)
	}

	body, err := json.Marshal(smsRequest{
		From: c.sender,
		To:   to,
		Text: smsText(msg),
		Ref:  msg.ReminderID.String(),
	})
	if err != nil {
		return fmt.Errorf("encode sms: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("sms gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func smsText(msg domain.Message) string {
	text := strings.TrimSpace(msg.Body)
	if text == "" {
		text = strings.TrimSpace(msg.Subject)
	}
	if r := []rune(text); len(r) > smsMaxLength {
		text = string(r[:smsMaxLength-1]) + "…"
	}
	return text
}
