package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"dispatchhub/internal/service"
)

// WebhookGateway hands notifications to an external push provider by POSTing
// them as JSON.
type WebhookGateway struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

func NewWebhookGateway(url string, timeout time.Duration, logger zerolog.Logger) *WebhookGateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookGateway{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Send returns an error only for failures worth retrying. Without a URL the
// notification is logged and dropped; 4xx answers are dropped too.
func (g *WebhookGateway) Send(ctx context.Context, n service.NotificationView) error {
	if g.url == "" {
		g.logger.Info().
			Str("notification_id", n.ID).
			Str("recipient", n.Recipient).
			Str("type", n.Type).
			Msg("push gateway not configured, skipping")
		return nil
	}

	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook answered %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		g.logger.Warn().Int("status", resp.StatusCode).Str("notification_id", n.ID).Msg("webhook rejected notification")
	}
	return nil
}
