//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"RegimeLab/internal/usecase"
	"RegimeLab/pkg/config"
	"RegimeLab/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideInfra,
		ProvideCacheService,
		ProvideQueue,
		ProvideMetrics,

		// Repositories
		ProvideRunStore,
		ProvideResultPublisher,
		ProvidePriceFeed,
		ProvideCandleSource,
		ProvideJobStore,

		// Use cases
		ProvideEngineConfig,
		usecase.NewCandlesUseCase,
		usecase.NewBootstrapUseCase,
		usecase.NewSimulateUseCase,
		usecase.NewMonteCarloUseCase,
		usecase.NewRobustnessUseCase,
		ProvideJobsUseCase,
		ProvideKafkaRequestsHandler,

		// Transport
		ProvideResponseCache,
		ProvideEngineHandler,
		ProvideHTTPServer,
		ProvideKafkaConsumer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
