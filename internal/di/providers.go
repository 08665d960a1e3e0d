package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	domrepo "RegimeLab/internal/domain/repository"
	domsvc "RegimeLab/internal/domain/service"
	"RegimeLab/internal/handler/api"
	internalrepo "RegimeLab/internal/repository"
	icache "RegimeLab/internal/service/cache"
	"RegimeLab/internal/service/ratelimit"
	"RegimeLab/internal/services/pricefeed"
	"RegimeLab/internal/usecase"
	pkgcache "RegimeLab/pkg/cache"
	pkgch "RegimeLab/pkg/clickhouse"
	"RegimeLab/pkg/config"
	xhttp "RegimeLab/pkg/http"
	pkgkafka "RegimeLab/pkg/kafka"
	applogger "RegimeLab/pkg/logger"
	"RegimeLab/pkg/metrics"
	"RegimeLab/pkg/queue"
	"RegimeLab/pkg/server"
)

// Infra holds the optional infrastructure clients. A nil field means the
// component is disabled in the configuration.
type Infra struct {
	ClickHouse *pkgch.Client
	Producer   *pkgkafka.Producer
	Redis      *pkgcache.RedisCache
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger. With the collector enabled,
// aggregated errors are shipped through the Kafka producer.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: cfg.Log.Collector.Interval,
			Topic:        cfg.Log.Collector.Topic,
			Publisher:    producer,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideClickHouseClient connects to ClickHouse and ensures the schema, or
// returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideRedisCache connects to Redis, or returns nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(net.JoinHostPort(cfg.Redis.Host, strconv.Itoa(cfg.Redis.Port))),
		pkgcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, 5*time.Second),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

func ProvideInfra(ch *pkgch.Client, producer *pkgkafka.Producer, rc *pkgcache.RedisCache) *Infra {
	return &Infra{ClickHouse: ch, Producer: producer, Redis: rc}
}

// ProvideCacheService layers an in-process cache over Redis when Redis is
// enabled and falls back to memory only.
func ProvideCacheService(rc *pkgcache.RedisCache) pkgcache.Service {
	if rc == nil {
		return pkgcache.NewMemoryCache()
	}
	return pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredL1TTL(time.Minute))
}

// ProvideQueue uses Redis lists when Redis is enabled.
func ProvideQueue(cfg *config.Config, l *applogger.Logger, rc *pkgcache.RedisCache) queue.Queue {
	qcfg := &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.QueueSize,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	if rc == nil {
		return queue.NewMemoryQueue(l, qcfg)
	}
	return queue.NewRedisQueue(l, qcfg, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

func ProvideRunStore(ch *pkgch.Client, cfg *config.Config) domrepo.RunStore {
	if ch == nil {
		return internalrepo.NopRunStore{}
	}
	return internalrepo.NewCHRunStore(ch, cfg.ClickHouse.Database)
}

func ProvideResultPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.ResultPublisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.ResultsTopic)
}

// ProvidePriceFeed returns nil when the backtest API is not configured.
func ProvidePriceFeed(cfg *config.Config) domsvc.PriceFeed {
	if !cfg.PriceFeed.Enabled {
		return nil
	}
	return pricefeed.New(cfg.PriceFeed.BaseURL, cfg.PriceFeed.Timeout, cfg.PriceFeed.Retries)
}

// ProvideCandleSource chains ClickHouse and the price feed. It returns nil
// when neither is available; symbol lookups then fail with ErrNoCandles.
func ProvideCandleSource(ch *pkgch.Client, feed domsvc.PriceFeed, cfg *config.Config, l *applogger.Logger) domrepo.CandleSource {
	if ch == nil && feed == nil {
		return nil
	}
	var (
		store  domrepo.CandleSource
		writer domrepo.CandleWriter
	)
	if ch != nil {
		cs := internalrepo.NewCHCandleStore(ch, cfg.ClickHouse.Database, l)
		store, writer = cs, cs
	}
	return internalrepo.NewChainedCandleSource(store, writer, feed, cfg.CacheTTL.Candles, l)
}

func ProvideEngineConfig(cfg *config.Config) usecase.EngineConfig {
	return usecase.EngineConfig{
		VolatilityWindow: cfg.Engine.VolatilityWindow,
		MaxShuffles:      cfg.Engine.MaxShuffles,
		MaxSimulations:   cfg.Engine.MaxSimulations,
		Bins:             cfg.Engine.HistogramBins,
		Workers:          cfg.Engine.Workers,
		RiskFreeRate:     cfg.Engine.RiskFreeRate,
	}
}

func ProvideJobStore(c pkgcache.Service, cfg *config.Config) domrepo.JobStore {
	return internalrepo.NewCacheJobStore(c, cfg.CacheTTL.Jobs)
}

// ProvideJobsUseCase also registers the job handlers on the queue.
func ProvideJobsUseCase(store domrepo.JobStore, q queue.Queue, robust *usecase.RobustnessUseCase, mc *usecase.MonteCarloUseCase, pub domrepo.ResultPublisher, l *applogger.Logger) *usecase.JobsUseCase {
	jobs := usecase.NewJobsUseCase(store, q, robust, mc, pub, l)
	for _, j := range jobs.QueueJobs() {
		q.RegisterJob(j)
	}
	return jobs
}

func ProvideResponseCache(c pkgcache.Service, cfg *config.Config) *icache.ResponseCache {
	return icache.NewResponseCache(icache.NewServiceCache(c), cfg.CacheTTL.Responses)
}

func ProvideEngineHandler(
	cfg *config.Config,
	l *applogger.Logger,
	bootstrap *usecase.BootstrapUseCase,
	simulate *usecase.SimulateUseCase,
	mc *usecase.MonteCarloUseCase,
	robust *usecase.RobustnessUseCase,
	jobs *usecase.JobsUseCase,
	runs domrepo.RunStore,
	rc *icache.ResponseCache,
	m domrepo.Metrics,
	infra *Infra,
	feed domsvc.PriceFeed,
) *api.EngineHandler {
	opts := []api.Option{
		api.WithResponseCache(rc),
		api.WithRunStore(runs),
		api.WithMetrics(m),
		api.WithHealthCheck("clickhouse", func(ctx context.Context) error { return runs.Health(ctx) }),
	}
	if cfg.Server.RateLimit.Enabled {
		opts = append(opts, api.WithRateLimiter(ratelimit.New(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.Refill)))
	}
	if infra.Redis != nil {
		opts = append(opts, api.WithHealthCheck("redis", func(ctx context.Context) error {
			return infra.Redis.Client().Ping(ctx).Err()
		}))
	}
	if feed != nil {
		opts = append(opts, api.WithHealthCheck("pricefeed", feed.Health))
	}
	return api.NewEngineHandler(l, bootstrap, simulate, mc, robust, jobs, opts...)
}

// ProvideKafkaConsumer creates the job request consumer, or nil when it is
// disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.TraceHook())
	return consumer, nil
}

func ProvideKafkaRequestsHandler(cfg *config.Config, jobs *usecase.JobsUseCase, m domrepo.Metrics, l *applogger.Logger) *usecase.KafkaRequestsHandler {
	return usecase.NewKafkaRequestsHandler(cfg.Kafka.RequestsTopic, jobs, m, l)
}

func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.EngineHandler) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithLogger(l),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, cfg.Metrics.SlowThreshold))
	}
	return xhttp.NewServer([]xhttp.Handler{h}, opts...)
}

// ProvideApp assembles the application lifecycle.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	q queue.Queue,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaRequestsHandler,
	infra *Infra,
	runs domrepo.RunStore,
	pub domrepo.ResultPublisher,
	c pkgcache.Service,
) *server.App {
	opts := []server.Option{
		server.WithQueue(q),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		// closes redis too when it is enabled
		server.WithCloser("cache", c.Close),
	}
	if infra.ClickHouse != nil {
		opts = append(opts,
			server.WithCloser("clickhouse", infra.ClickHouse.Close),
			server.WithCloser("run store", runs.Close))
	}
	if infra.Producer != nil {
		opts = append(opts,
			server.WithCloser("result publisher", pub.Close),
			server.WithCloser("kafka producer", infra.Producer.Close))
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer, kh))
	}
	opts = append(opts, server.WithCloser("logger", func() error { l.RemoveCollector(); return nil }))
	return server.New(l, httpServer, opts...)
}
