package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestJitterBounds(t *testing.T) {
	lo, hi := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 8; attempt++ {
		d := jitter(lo, hi, attempt)
		if d <= 0 || d > hi {
			t.Fatalf("attempt %d: delay %v out of (0, %v]", attempt, d, hi)
		}
	}
}

func TestLaneForKeepsPartitionOnOneLane(t *testing.T) {
	for p := 0; p < 16; p++ {
		if a, b := laneFor(p, 3), laneFor(p, 3); a != b || a < 0 || a >= 3 {
			t.Fatalf("partition %d: lanes %d %d", p, a, b)
		}
	}
	if laneFor(5, 1) != 0 {
		t.Fatalf("single lane must take every partition")
	}
}

func TestConsumerStartNeedsHandlers(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerWorkers(2))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	if c.cfg.Workers != 2 || c.cfg.GroupID != "regimelab" {
		t.Fatalf("unexpected config %+v", c.cfg)
	}
	if err := c.Start(); err == nil {
		t.Fatalf("expected error without handlers")
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop before start: %v", err)
	}
	if _, err := NewConsumer(); err == nil {
		t.Fatalf("expected brokers error")
	}
}

func TestTraceHookCopiesHeader(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, data, err := TraceHook().BeforeHandle(context.Background(), "t", km, []byte("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if TraceID(ctx) != "abc" || string(data) != "x" {
		t.Fatalf("expected trace id abc and untouched data, got %q %q", TraceID(ctx), data)
	}
}

func TestEncodeValue(t *testing.T) {
	raw := json.RawMessage(`{"a":1}`)
	if b, _ := encodeValue(raw); string(b) != `{"a":1}` {
		t.Fatalf("raw message must pass through, got %s", b)
	}
	if b, _ := encodeValue(map[string]int{"n": 2}); string(b) != `{"n":2}` {
		t.Fatalf("expected JSON encoding, got %s", b)
	}
}

func TestNewMessageCarriesTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "req-9")
	msg, err := newMessage(ctx, "results", []byte("job-1"), map[string]string{"status": "done"})
	if err != nil {
		t.Fatalf("newMessage: %v", err)
	}
	if string(msg.Key) != "job-1" || string(msg.Value) != `{"status":"done"}` {
		t.Fatalf("unexpected message %q %q", msg.Key, msg.Value)
	}
	if ExtractTraceID(msg) != "req-9" {
		t.Fatalf("trace id header missing: %+v", msg.Headers)
	}

	plain, _ := newMessage(context.Background(), "results", nil, "x")
	if ExtractTraceID(plain) != "" {
		t.Fatalf("no trace id expected without one in ctx")
	}
}

func TestNewProducerValidates(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("expected brokers error")
	}
	if _, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("brotli")); err == nil {
		t.Fatalf("expected compression error")
	}
	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("zstd"))
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	if p.writer.Compression != kafka.Zstd || p.writer.MaxAttempts != 3 {
		t.Fatalf("options not applied: %+v", p.writer)
	}
	_ = p.Close()
}
