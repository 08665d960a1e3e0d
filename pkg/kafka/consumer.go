package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"RegimeLab/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles the messages of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads every registered topic in one consumer group. Fetched
// messages are routed to a lane by partition; a lane handles one message at
// a time and commits its offset once the message is handled or
// dead-lettered.
type Consumer struct {
	cfg      *ConsumerConfig
	l        *logger.Logger
	handlers map[string]MessageHandler
	hook     ConsumerHook
	dlq      *kafka.Writer

	readers []*kafka.Reader
	lanes   []chan kafka.Message
	ctx     context.Context
	cancel  context.CancelFunc
	fetchWg sync.WaitGroup
	laneWg  sync.WaitGroup
	once    sync.Once
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: brokers are required")
	}
	consumerCollectors.Do(registerConsumerCollectors)

	c := &Consumer{
		cfg:      cfg,
		l:        cfg.Logger,
		handlers: make(map[string]MessageHandler),
		hook:     HookFuncs{},
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.DLQTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}
	return c, nil
}

// RegisterHandler must be called before Start.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.l.Warn("kafka handler already registered", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

func (c *Consumer) SetHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("kafka consumer: no handlers registered")
	}
	topics := make([]string, 0, len(c.handlers))
	for t := range c.handlers {
		topics = append(topics, t)
	}
	// One group reader over all topics; kafka-go sets Message.Topic.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.cfg.Brokers,
		GroupID:     c.cfg.GroupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    c.cfg.MaxBytes,
		StartOffset: kafka.FirstOffset,
	})
	c.readers = []*kafka.Reader{reader}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.lanes = make([]chan kafka.Message, c.cfg.Workers)
	for i := range c.lanes {
		c.lanes[i] = make(chan kafka.Message, c.cfg.LaneBuffer)
		c.laneWg.Add(1)
		go c.runLane(i, reader)
	}
	c.fetchWg.Add(1)
	go c.fetch(reader)

	c.l.Info("kafka consumer running",
		logger.String("group", c.cfg.GroupID),
		logger.Strings("topics", topics),
		logger.Int("lanes", c.cfg.Workers))
	return nil
}

// Stop stops fetching, lets every lane finish the message it holds and
// closes the reader. Buffered messages that were not handled are not
// committed, so the group redelivers them.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		if c.cancel == nil {
			return
		}
		c.cancel()
		done := make(chan struct{})
		go func() {
			c.fetchWg.Wait()
			for _, lane := range c.lanes {
				close(lane)
			}
			c.laneWg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("stop kafka consumer: %w", ctx.Err())
		}
		for _, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.l.Warn("close kafka reader", logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.l.Warn("close kafka dlq writer", logger.Error(cerr))
			}
		}
	})
	return err
}

func (c *Consumer) fetch(reader *kafka.Reader) {
	defer c.fetchWg.Done()
	for {
		km, err := reader.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.l.Warn("kafka fetch", logger.Error(err))
			if !sleepCtx(c.ctx, c.cfg.BackoffMin) {
				return
			}
			continue
		}
		lane := laneFor(km.Partition, len(c.lanes))
		select {
		case c.lanes[lane] <- km:
			laneDepth.WithLabelValues(km.Topic).Set(float64(len(c.lanes[lane])))
		case <-c.ctx.Done():
			return
		}
	}
}

func laneFor(partition, lanes int) int {
	if partition < 0 {
		partition = -partition
	}
	return partition % lanes
}

func (c *Consumer) runLane(id int, reader *kafka.Reader) {
	defer c.laneWg.Done()
	for km := range c.lanes[id] {
		if c.ctx.Err() != nil {
			// drain without committing
			continue
		}
		if c.process(km) {
			c.commit(reader, km)
		}
	}
}

// process reports whether the offset may be committed.
func (c *Consumer) process(km kafka.Message) (commit bool) {
	h, ok := c.handlers[km.Topic]
	if !ok {
		c.l.Warn("kafka message for unknown topic", logger.String("topic", km.Topic))
		return true
	}
	start := time.Now()
	defer func() {
		handleSeconds.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds())
	}()

	err := c.attempt(h, km)
	for retry := 1; err != nil && retry <= c.cfg.RetryMax; retry++ {
		if !sleepCtx(c.ctx, jitter(c.cfg.BackoffMin, c.cfg.BackoffMax, retry)) {
			return false
		}
		err = c.attempt(h, km)
	}
	if err == nil {
		outcomes.WithLabelValues(km.Topic, "ok").Inc()
		return true
	}
	if errors.Is(err, context.Canceled) && c.ctx.Err() != nil {
		return false
	}

	safeOnError(c.hook, c.ctx, km.Topic, km, km.Value, err)
	c.l.Error("kafka message failed",
		logger.String("topic", km.Topic),
		logger.Int("partition", km.Partition),
		logger.Int64("offset", km.Offset),
		logger.Error(err))
	if c.dlq == nil {
		// No DLQ: leave the offset so the message comes back after a rebalance.
		outcomes.WithLabelValues(km.Topic, "failed").Inc()
		return false
	}
	if derr := c.deadLetter(km, err); derr != nil {
		c.l.Error("kafka dlq write", logger.String("topic", c.cfg.DLQTopic), logger.Error(derr))
		outcomes.WithLabelValues(km.Topic, "failed").Inc()
		return false
	}
	outcomes.WithLabelValues(km.Topic, "dead_lettered").Inc()
	return true
}

func (c *Consumer) attempt(h MessageHandler, km kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	ctx, data, err := c.hook.BeforeHandle(c.ctx, km.Topic, km, km.Value)
	if err != nil {
		return err
	}
	err = h.Handle(ctx, data)
	safeAfter(c.hook, ctx, km.Topic, km, data, err)
	return err
}

func (c *Consumer) deadLetter(km kafka.Message, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	headers := append([]kafka.Header{}, km.Headers...)
	headers = append(headers,
		kafka.Header{Key: "source_topic", Value: []byte(km.Topic)},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
	)
	return c.dlq.WriteMessages(ctx, kafka.Message{Key: km.Key, Value: km.Value, Headers: headers})
}

func (c *Consumer) commit(reader *kafka.Reader, km kafka.Message) {
	var err error
	for try := 1; try <= 3; try++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(jitter(50*time.Millisecond, 500*time.Millisecond, try))
	}
	c.l.Error("kafka commit", logger.String("topic", km.Topic), logger.Int64("offset", km.Offset), logger.Error(err))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// jitter returns an exponential delay for attempt, capped at hi, minus up
// to half of itself.
func jitter(lo, hi time.Duration, attempt int) time.Duration {
	if lo <= 0 {
		lo = 50 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	d := lo
	for i := 1; i < attempt && d < hi; i++ {
		d *= 2
	}
	if d > hi {
		d = hi
	}
	if half := int64(d) / 2; half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}

var (
	laneDepth          *prometheus.GaugeVec
	handleSeconds      *prometheus.HistogramVec
	outcomes           *prometheus.CounterVec
	consumerCollectors sync.Once
)

func registerConsumerCollectors() {
	laneDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "regimelab_kafka_consumer_lane_depth",
		Help: "Messages buffered in a consumer lane",
	}, []string{"topic"})
	handleSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "regimelab_kafka_consumer_handle_seconds",
		Help:    "Time to handle one message including retries",
		Buckets: []float64{.01, .1, .5, 1, 5, 15, 60},
	}, []string{"topic"})
	outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regimelab_kafka_consumer_messages_total",
		Help: "Handled messages by outcome",
	}, []string{"topic", "outcome"})
}
