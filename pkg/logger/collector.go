package logger

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Publisher ships a digest to a topic, e.g. the Kafka producer.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval, default 30s
	CountThreshold int           // distinct entries that force an early flush, default 100
	Topic          string
	Publisher      Publisher
}

// maxRunSamples bounds how many distinct ids one digest entry keeps.
const maxRunSamples = 5

// sampleKeys identify a single run or job. They are sampled per entry and
// left out of the grouping key, as are the timing fields.
var sampleKeys = map[string]bool{"id": true, "run_id": true, "trace_id": true}

var ignoredKeys = map[string]bool{"seed": true, "took": true, "duration_ms": true}

// DigestEntry is one group of identical log lines seen during a window.
type DigestEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller"`
	Fields    map[string]interface{} `json:"fields"`
	Count     int                    `json:"count"`
	Samples   []string               `json:"samples,omitempty"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogDigest is the payload published on every flush. Entries are ordered by
// count, highest first.
type LogDigest struct {
	From    time.Time     `json:"from"`
	To      time.Time     `json:"to"`
	Entries []DigestEntry `json:"entries"`
}

// LogCollector groups repeated error lines so a failing dependency produces
// one digest entry per window instead of a line per engine run.
type LogCollector struct {
	cfg     CollectionConfig
	mu      sync.Mutex
	entries map[string]*DigestEntry
	from    time.Time
	kick    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	now     func() time.Time
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	cfg := *config
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}
	c := &LogCollector{
		cfg:     cfg,
		entries: make(map[string]*DigestEntry),
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	c.from = c.now()
	go c.loop()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	key, sample := groupKey(level, message, caller, fields)
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &DigestEntry{
			Level:     level,
			Message:   message,
			Caller:    caller,
			Fields:    fields,
			FirstSeen: now,
		}
		c.entries[key] = e
	}
	e.Count++
	e.LastSeen = now
	if sample != "" && len(e.Samples) < maxRunSamples && !contains(e.Samples, sample) {
		e.Samples = append(e.Samples, sample)
	}
	full := len(c.entries) >= c.cfg.CountThreshold
	c.mu.Unlock()

	if full {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
}

// groupKey renders the stable part of a log line. The first sample key
// found is returned separately.
func groupKey(level, message, caller string, fields map[string]interface{}) (string, string) {
	keys := make([]string, 0, len(fields))
	sample := ""
	for k, v := range fields {
		switch {
		case sampleKeys[k]:
			if sample == "" {
				sample = fmt.Sprint(v)
			}
		case ignoredKeys[k]:
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(level)
	b.WriteByte('|')
	b.WriteString(caller)
	b.WriteByte('|')
	b.WriteString(message)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, fields[k])
	}
	return b.String(), sample
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func (c *LogCollector) loop() {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.TimeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Flush()
		case <-c.kick:
			c.Flush()
		case <-c.stop:
			c.Flush()
			return
		}
	}
}

// take swaps out the current window.
func (c *LogCollector) take() *LogDigest {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.entries) == 0 {
		c.from = now
		return nil
	}
	d := &LogDigest{From: c.from, To: now, Entries: make([]DigestEntry, 0, len(c.entries))}
	for _, e := range c.entries {
		d.Entries = append(d.Entries, *e)
	}
	sort.Slice(d.Entries, func(i, j int) bool {
		if d.Entries[i].Count != d.Entries[j].Count {
			return d.Entries[i].Count > d.Entries[j].Count
		}
		return d.Entries[i].FirstSeen.Before(d.Entries[j].FirstSeen)
	})
	c.entries = make(map[string]*DigestEntry)
	c.from = now
	return d
}

// Flush publishes the current window, if any, and starts a new one.
func (c *LogCollector) Flush() {
	d := c.take()
	if d == nil || c.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, d); err != nil {
		// the logger itself may be what is failing
		fmt.Fprintf(os.Stderr, "regimelab: publish log digest (%d entries): %v\n", len(d.Entries), err)
	}
}

// Close flushes what is left and stops the collector. It is safe to call
// more than once.
func (c *LogCollector) Close() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	<-c.done
}
