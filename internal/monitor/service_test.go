package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/jacqueswww/btfd/internal/config"
	"github.com/jacqueswww/btfd/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	sqliteStore, err := store.NewSQLite(config.DatabaseConfig{
		InMemory:        true,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = sqliteStore.Close() })

	svc, err := NewService(sqliteStore, nil)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc
}

func TestService_RecordAndListEvents(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.Record(ctx, Event{
		Type:     EventCycle,
		Strategy: "btc_zar",
		Payload:  map[string]interface{}{"base_price": "100", "placed": float64(3)},
	})
	svc.Record(ctx, Event{
		Type:     EventPlacement,
		Strategy: "btc_zar",
		Payload:  map[string]interface{}{"price": "95"},
	})
	svc.Record(ctx, Event{
		Type:     EventCycle,
		Strategy: "eth_zar",
		Payload:  map[string]interface{}{"placed": float64(0)},
	})

	events, err := svc.ListEvents(ctx, "", "", 0)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	// 最新事件在前。
	if events[0].Strategy != "eth_zar" {
		t.Errorf("events[0].Strategy = %q, want eth_zar", events[0].Strategy)
	}
	if events[0].Timestamp.IsZero() {
		t.Errorf("expected recorded timestamp to round-trip")
	}
}

func TestService_ListEvents_Filters(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.Record(ctx, Event{Type: EventCycle, Strategy: "btc_zar"})
	svc.Record(ctx, Event{Type: EventSkip, Strategy: "btc_zar", Payload: map[string]interface{}{"reason": "below_minimum"}})
	svc.Record(ctx, Event{Type: EventCycle, Strategy: "eth_zar"})

	byType, err := svc.ListEvents(ctx, EventCycle, "", 0)
	if err != nil {
		t.Fatalf("ListEvents by type returned error: %v", err)
	}
	if len(byType) != 2 {
		t.Errorf("expected 2 cycle events, got %d", len(byType))
	}

	both, err := svc.ListEvents(ctx, EventCycle, "btc_zar", 0)
	if err != nil {
		t.Fatalf("ListEvents by type+strategy returned error: %v", err)
	}
	if len(both) != 1 || both[0].Strategy != "btc_zar" {
		t.Errorf("unexpected filter result: %+v", both)
	}

	limited, err := svc.ListEvents(ctx, "", "", 1)
	if err != nil {
		t.Fatalf("ListEvents with limit returned error: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected limit 1 to apply, got %d events", len(limited))
	}
}

func TestService_RecordError(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordError(ctx, "btc_zar", "撤单失败", context.DeadlineExceeded)

	events, err := svc.ListEvents(ctx, EventError, "btc_zar", 0)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(events))
	}
	if events[0].Payload["message"] != "撤单失败" {
		t.Errorf("payload message = %v", events[0].Payload["message"])
	}
	if events[0].Payload["error"] == "" {
		t.Errorf("expected cause to be recorded")
	}
}
