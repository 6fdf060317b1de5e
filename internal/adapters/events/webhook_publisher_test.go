package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/momentschema/internal/core/domain"
)

func TestWebhookPublisherSuccess(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	secret := "test-secret"
	pub := NewWebhookPublisher(srv.URL, secret, 5*time.Second)
	pub.now = func() time.Time { return time.Unix(1717243200, 0) }

	event := domain.EventEnvelope{
		EventID:          "evt-1",
		EventType:        domain.EventSchemaUpserted,
		TenantID:         "tenant-a",
		AggregateType:    "collection_schema",
		AggregateID:      "bookings",
		AggregateVersion: 3,
		SchemaVersion:    domain.CurrentEventSchemaVersion,
	}

	if err := pub.Publish(context.Background(), event.Topic(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"Content-Type":  "application/json",
		HeaderTopic:     "events.tenant-a.schema.upserted",
		HeaderEventID:   "evt-1",
		HeaderEventType: "schema.upserted",
		HeaderTenant:    "tenant-a",
		HeaderTimestamp: "1717243200",
	}
	for name, value := range want {
		if got := gotHeaders.Get(name); got != value {
			t.Errorf("%s = %q, want %q", name, got, value)
		}
	}

	sig := gotHeaders.Get(HeaderSignature)
	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("signature header malformed: %q", sig)
	}
	if !Verify([]byte(secret), "1717243200", gotBody, sig) {
		t.Fatalf("signature does not verify: %q", sig)
	}
	if Verify([]byte(secret), "1717243201", gotBody, sig) {
		t.Fatal("signature must bind the timestamp")
	}

	var decoded domain.EventEnvelope
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.EventID != event.EventID || decoded.AggregateVersion != 3 {
		t.Errorf("unexpected body: %+v", decoded)
	}
}

func TestWebhookPublisherNon2xxReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pub := NewWebhookPublisher(srv.URL, "secret", 5*time.Second)
	event := domain.EventEnvelope{EventID: "evt-2", EventType: domain.EventDocumentRejected, TenantID: "t", SchemaVersion: 1}

	err := pub.Publish(context.Background(), event.Topic(), event)
	if err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should mention status code 500, got: %v", err)
	}
}

func TestWebhookPublisherContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	pub := NewWebhookPublisher(srv.URL, "secret", 5*time.Second)
	event := domain.EventEnvelope{EventID: "evt-3", EventType: domain.EventSchemaDeleted, SchemaVersion: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Publish(ctx, "events.t.schema.deleted", event)
	if err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected error to wrap context.Canceled, got: %v", err)
	}
}

func TestWebhookPublisherZeroTimeoutUsesDefault(t *testing.T) {
	pub := NewWebhookPublisher("http://localhost:9", "s", 0)
	if pub.client.Timeout != defaultWebhookTimeout {
		t.Errorf("timeout = %v, want %v", pub.client.Timeout, defaultWebhookTimeout)
	}
}

func TestLogPublisherWritesEventLine(t *testing.T) {
	var buf bytes.Buffer
	pub := NewLogPublisher(log.New(&buf, "", 0))
	event := domain.EventEnvelope{EventID: "evt-4", EventType: domain.EventDocumentRejected, TenantID: "tenant-a", AggregateType: "report", AggregateID: "r-1", AggregateVersion: 2}

	if err := pub.Publish(context.Background(), event.Topic(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	line := buf.String()
	for _, part := range []string{"topic=events.tenant-a.document.rejected", "event_id=evt-4", "aggregate=report/r-1", "version=2"} {
		if !strings.Contains(line, part) {
			t.Errorf("log line %q missing %q", line, part)
		}
	}
}
