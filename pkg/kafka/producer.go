package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

// Producer writes JSON events. Keyed messages hash to a fixed partition, so
// every event of one job stays in order.
type Producer struct {
	writer      *kafka.Writer
	compression string
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka producer: brokers are required")
	}
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  codec,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}
	registerProducerMetrics()
	return &Producer{writer: w, compression: cfg.Compression}, nil
}

// Publish encodes value and writes it to topic. A trace id set with
// WithTraceID travels as the trace_id header.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	msg, err := newMessage(ctx, topic, key, value)
	if err != nil {
		return err
	}
	start := time.Now()
	err = p.writer.WriteMessages(ctx, msg)
	producerMetrics.observe(topic, len(msg.Value), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", topic, err)
	}
	return nil
}

// PublishMessage publishes payload without a key. The log collector uses it.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func newMessage(ctx context.Context, topic string, key []byte, value interface{}) (kafka.Message, error) {
	v, err := encodeValue(value)
	if err != nil {
		return kafka.Message{}, err
	}
	msg := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   v,
		Time:    time.Now().UTC(),
		Headers: []kafka.Header{{Key: "content_type", Value: []byte("application/json")}},
	}
	if id := TraceID(ctx); id != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "trace_id", Value: []byte(id)})
	}
	return msg, nil
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal kafka value: %w", err)
	}
	return b, nil
}

func compressionCodec(name string) (kafka.Compression, error) {
	switch name {
	case "", "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, fmt.Errorf("kafka producer: unknown compression %q", name)
}

type producerCollectors struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	producerMetrics     *producerCollectors
	producerMetricsOnce sync.Once
)

func registerProducerMetrics() {
	producerMetricsOnce.Do(func() {
		c := &producerCollectors{
			messages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "regimelab_kafka_producer_messages_total",
				Help: "Messages written to Kafka by topic and result.",
			}, []string{"topic", "result"}),
			bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "regimelab_kafka_producer_bytes_total",
				Help: "Uncompressed payload bytes written to Kafka.",
			}, []string{"topic"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "regimelab_kafka_producer_write_seconds",
				Help:    "WriteMessages latency.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			}, []string{"topic"}),
		}
		prometheus.MustRegister(c.messages, c.bytes, c.latency)
		producerMetrics = c
	})
}

func (c *producerCollectors) observe(topic string, n int, took time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.messages.WithLabelValues(topic, result).Inc()
	if err == nil {
		c.bytes.WithLabelValues(topic).Add(float64(n))
	}
	c.latency.WithLabelValues(topic).Observe(took.Seconds())
}
