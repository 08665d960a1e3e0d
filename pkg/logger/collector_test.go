package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingPublisher struct {
	mu      sync.Mutex
	topics  []string
	digests []*LogDigest
}

func (p *recordingPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.digests = append(p.digests, payload.(*LogDigest))
	return nil
}

func (p *recordingPublisher) last(t *testing.T) *LogDigest {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.digests) == 0 {
		t.Fatalf("nothing published")
	}
	return p.digests[len(p.digests)-1]
}

func TestCollectorGroupsRepeatedErrors(t *testing.T) {
	pub := &recordingPublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "logs", Publisher: pub})
	defer l.RemoveCollector()

	for i, id := range []string{"a", "b", "a"} {
		l.Error("save run", String("id", id), Seed(int64(i)), String("store", "clickhouse"), Error(errors.New("boom")))
	}
	l.Error("publish result", String("id", "c"))
	l.collector.Flush()

	d := pub.last(t)
	if pub.topics[0] != "logs" {
		t.Fatalf("unexpected topic %q", pub.topics[0])
	}
	if len(d.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", d.Entries)
	}
	top := d.Entries[0]
	if top.Message != "save run" || top.Count != 3 {
		t.Fatalf("expected save run x3 first, got %+v", top)
	}
	if len(top.Samples) != 2 || top.Samples[0] != "a" || top.Samples[1] != "b" {
		t.Fatalf("expected samples [a b], got %v", top.Samples)
	}
	if top.Fields["store"] != "clickhouse" {
		t.Fatalf("fields not kept: %+v", top.Fields)
	}
	if d.To.Before(d.From) {
		t.Fatalf("window out of order: %v %v", d.From, d.To)
	}
}

func TestCollectorThresholdFlushes(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})
	defer c.Close()

	c.AddLog("error", "one", nil, "x.go:1")
	c.AddLog("error", "two", nil, "x.go:2")

	deadline := time.Now().Add(2 * time.Second)
	for {
		pub.mu.Lock()
		n := len(pub.digests)
		pub.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("threshold did not trigger a flush")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(pub.last(t).Entries); got != 2 {
		t.Fatalf("expected 2 entries, got %d", got)
	}
}

func TestCollectorCloseFlushesOnce(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs", Publisher: pub})
	c.AddLog("error", "left over", nil, "x.go:1")
	c.Close()
	c.Close()
	if len(pub.digests) != 1 || pub.digests[0].Entries[0].Message != "left over" {
		t.Fatalf("expected final flush on close, got %d digests", len(pub.digests))
	}
}

func TestWithSharesCollector(t *testing.T) {
	l := Nop()
	l.AddCollector(&CollectionConfig{Topic: "logs"})
	defer l.RemoveCollector()
	child := l.With(String("component", "bootstrap"))
	if child.collector != l.collector {
		t.Fatalf("child logger must share the collector")
	}
	child.Info("ok", Float64("bucket_size", 20), Seed(1))
}
