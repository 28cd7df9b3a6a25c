package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier implements ports.NotificationService against a push gateway
// that fans out to device tokens registered per user.
type Notifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// New creates a Notifier.
func New(endpoint, apiKey string) *Notifier {
	return &Notifier{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type pushPayload struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// SendPush delivers a notification to all of a user's devices.
func (n *Notifier) SendPush(ctx context.Context, userID, title, body string) error {
	data, err := json.Marshal(pushPayload{UserID: userID, Title: title, Body: body})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint+"/v1/push", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("push gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned status %d", resp.StatusCode)
	}
	return nil
}
