//go:build wireinject
// +build wireinject

package di

import (
	"QuantPipe/pkg/config"
	"QuantPipe/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Pipeline
		ProvideDataStage,
		ProvideSignalStage,
		ProvideRiskStage,
		ProvideExecutionStage,
		ProvideKafkaProducer,
		ProvideReportPublisher,
		ProvideEngine,

		// Ingress
		ProvideCandleBuffer,
		ProvideRunner,
		ProvideCandleCollector,
		ProvideKafkaConsumer,
		ProvideKafkaCandlesHandler,
		ProvideStore,
		ProvideAlertProcessor,
		ProvideRateLimiter,
		ProvidePipelineHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
