// Package whatsapp mirrors the sms webhook contract for WhatsApp Business
// API gateways: POST {"to", "template", "params"}.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Sender struct {
	url    string
	token  string
	client *http.Client
}

func NewSender(url, token string) *Sender {
	return &Sender{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *Sender) Configured() bool { return s.url != "" }

func (s *Sender) Send(ctx context.Context, to, template string, params map[string]string) error {
	if s.url == "" {
		return fmt.Errorf("whatsapp: gateway not configured")
	}
	payload, err := json.Marshal(map[string]any{
		"to":       to,
		"template": template,
		"params":   params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: gateway call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp: gateway returned %d", resp.StatusCode)
	}
	return nil
}
