package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"tiendapos/backend/internal/domain"
)

func TestEncodeKeysBySale(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg, err := encode(domain.SaleEvent{
		ID:         "evt-1",
		Type:       domain.EventSaleCreated,
		SaleID:     42,
		SaleNumber: "SUC001-20260301120000-ABCD",
		TotalCents: 8896,
		OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(msg.Key) != "42" {
		t.Fatalf("expected key 42, got %q", msg.Key)
	}
	if !msg.Time.Equal(at) {
		t.Fatalf("expected message time %v, got %v", at, msg.Time)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != domain.EventSaleCreated {
		t.Fatalf("expected event type header, got %+v", msg.Headers)
	}

	var decoded domain.SaleEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.TotalCents != 8896 || decoded.SaleNumber != "SUC001-20260301120000-ABCD" {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	if err := p.Publish(context.Background(), domain.SaleEvent{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
