package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jacksonlee411/lease-signflow/pkg/logger"
)

type Sender interface {
	Send(ctx context.Context, n Notice) error
}

// WebhookSender posts notices as JSON to a delivery gateway.
type WebhookSender struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewWebhookSender(endpoint string, token string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{endpoint: endpoint, token: token, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSender) Send(ctx context.Context, n Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.EventID+":"+n.Channel+":"+n.Recipient.Contact)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	if id := logger.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s notice: %w", n.Channel, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s notice: status %d: %s", n.Channel, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// LogSender writes notices to the structured log instead of delivering them.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, n Notice) error {
	logger.Info(ctx, "notice",
		"channel", n.Channel,
		"kind", string(n.Kind),
		"event_type", n.EventType,
		"contract_id", n.ContractID,
		"recipient", n.Recipient.Name,
		"contact", n.Recipient.Contact,
		"subject", n.Subject,
	)
	return nil
}
