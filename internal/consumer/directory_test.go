package consumer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
)

type invalidateCall struct {
	entity string
	id     string
}

type recordingCache struct {
	calls []invalidateCall
}

func (r *recordingCache) Invalidate(_ context.Context, entity, id string) {
	r.calls = append(r.calls, invalidateCall{entity: entity, id: id})
}

func TestDirectoryUpdateHandler_HolidayInvalidatesByDay(t *testing.T) {
	cache := &recordingCache{}
	handler := DirectoryUpdateHandler(cache, slog.New(slog.NewTextHandler(io.Discard, nil)))

	msg := kafka.Message{Value: []byte(`{"entity":"holiday","id":"2026-12-25"}`)}
	if err := handler(context.Background(), msg); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if len(cache.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(cache.calls))
	}
	if cache.calls[0].entity != "holiday" || cache.calls[0].id != "2026-12-25" {
		t.Fatalf("call = %+v, want holiday/2026-12-25", cache.calls[0])
	}
}

func TestDirectoryUpdateHandler_MalformedPayloadFlushes(t *testing.T) {
	cache := &recordingCache{}
	handler := DirectoryUpdateHandler(cache, slog.New(slog.NewTextHandler(io.Discard, nil)))

	msg := kafka.Message{Value: []byte(`not json`)}
	if err := handler(context.Background(), msg); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if len(cache.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(cache.calls))
	}
	if cache.calls[0].entity != "" || cache.calls[0].id != "" {
		t.Fatalf("call = %+v, want empty entity and id", cache.calls[0])
	}
}
