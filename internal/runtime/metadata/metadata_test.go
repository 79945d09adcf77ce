package metadata

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
)

func TestCloneDoesNotAlias(t *testing.T) {
	original := Metadata{"a": "1", "b": "2"}
	clone := original.Clone()
	clone["a"] = "changed"

	if original["a"] != "1" {
		t.Fatalf("expected original map to stay untouched, got %q", original["a"])
	}
	if len(clone) != len(original) {
		t.Fatalf("expected clone to have same size")
	}
}

func TestCloneEmpty(t *testing.T) {
	var m Metadata
	cloned := m.Clone()
	if cloned == nil || len(cloned) != 0 {
		t.Fatalf("expected empty non-nil map, got %#v", cloned)
	}
}

func TestWithSkipsEmptyValues(t *testing.T) {
	base := Metadata{KeyDeviceID: "d1"}
	enriched := base.With(KeyCorrelationID, "corr-1")
	if _, ok := base[KeyCorrelationID]; ok {
		t.Fatal("expected base map to remain unchanged")
	}
	if enriched.CorrelationID() != "corr-1" {
		t.Fatalf("expected correlation id to be set, got %#v", enriched)
	}

	unchanged := base.With(KeyCorrelationID, "")
	if _, ok := unchanged[KeyCorrelationID]; ok {
		t.Fatal("expected empty value to be skipped")
	}
}

func TestForReading(t *testing.T) {
	md := ForReading("d1", "c1", "2024-01-01T00:00:00Z")
	if md[KeyDeviceID] != "d1" || md[KeyCookID] != "c1" || md[KeyReadingTime] != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected reading metadata: %#v", md)
	}
}

func TestToAndFromWatermill(t *testing.T) {
	md := Metadata{"source": "bus"}
	wm := ToWatermill(md)
	if wm["source"] != "bus" {
		t.Fatalf("expected watermill metadata to copy entries")
	}
	wm["source"] = "mutation"
	if md["source"] != "bus" {
		t.Fatalf("expected original metadata to be immutable to watermill changes")
	}
	if len(ToWatermill(nil)) != 0 {
		t.Fatal("expected nil input to return empty metadata")
	}

	back := FromWatermill(message.Metadata{"event": "reading"})
	if back["event"] != "reading" {
		t.Fatalf("expected watermill metadata to convert back")
	}
	if md := FromWatermill(nil); md == nil || len(md) != 0 {
		t.Fatal("expected empty non-nil map")
	}
}

func TestCorrelationIDContext(t *testing.T) {
	ctx := context.Background()
	if got := CorrelationIDFromContext(ctx); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
	if ContextWithCorrelationID(ctx, "") != ctx {
		t.Fatal("expected empty id to leave the context untouched")
	}
	ctx = ContextWithCorrelationID(ctx, "corr-1")
	if got := CorrelationIDFromContext(ctx); got != "corr-1" {
		t.Fatalf("expected corr-1, got %q", got)
	}
}
