package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
)

const (
	defaultWebhookTimeout = 10 * time.Second

	HeaderTopic     = "X-Momentschema-Topic"
	HeaderEventID   = "X-Momentschema-Event-Id"
	HeaderEventType = "X-Momentschema-Event-Type"
	HeaderTenant    = "X-Momentschema-Tenant"
	HeaderTimestamp = "X-Momentschema-Timestamp"
	HeaderSignature = "X-Momentschema-Signature"
)

// WebhookPublisher POSTs schema and validation events to an HTTP endpoint.
// Non-2xx responses are errors so the outbox dispatcher retries them.
type WebhookPublisher struct {
	url    string
	secret []byte
	client *http.Client
	now    func() time.Time
}

// NewWebhookPublisher returns a publisher for url. A zero or negative
// timeout uses defaultWebhookTimeout.
func NewWebhookPublisher(url, secret string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookPublisher{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// Publish sends event as JSON. The signature header carries
// "sha256=<hex>" over "<timestamp>.<body>" so receivers can reject replays.
func (p *WebhookPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	timestamp := strconv.FormatInt(p.now().Unix(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTopic, topic)
	req.Header.Set(HeaderEventID, event.EventID)
	req.Header.Set(HeaderEventType, event.EventType)
	req.Header.Set(HeaderTenant, event.TenantID)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, "sha256="+Sign(p.secret, timestamp, payload))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<payload>".
func Sign(secret []byte, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches payload and timestamp.
func Verify(secret []byte, timestamp string, payload []byte, signature string) bool {
	want := "sha256=" + Sign(secret, timestamp, payload)
	return hmac.Equal([]byte(want), []byte(signature))
}
