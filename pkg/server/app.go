package server

import (
	"context"
	"errors"
	"sync"

	"QuantPipe/internal/domain/repository"
	"QuantPipe/internal/usecase"
	"QuantPipe/pkg/cache"
	"QuantPipe/pkg/config"
	xhttp "QuantPipe/pkg/http"
	pkgkafka "QuantPipe/pkg/kafka"
	applogger "QuantPipe/pkg/logger"
)

// Components is everything App starts and stops. Runner, Collector,
// Consumer, CandlesHandler, Publisher and Store are optional.
type Components struct {
	Engine         *usecase.Engine
	Runner         *usecase.Runner
	Collector      *usecase.CandleCollector
	Consumer       *pkgkafka.Consumer
	CandlesHandler pkgkafka.MessageHandler
	Publisher      repository.ReportPublisher
	Store          cache.Service
	HTTP           *xhttp.Server
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	log *applogger.Logger
	c   Components

	runnerDone chan struct{}
	cancel     context.CancelFunc
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{cfg: cfg, log: log, c: c}
}

// Run starts the engine and every ingress, then blocks until ctx is done
// and shuts everything down.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start brings the engine up first so nothing feeds a stopped pipeline.
func (a *App) Start(ctx context.Context) error {
	if a.c.Engine == nil {
		return errors.New("server: engine is required")
	}
	if err := a.c.Engine.Start(ctx); err != nil {
		return err
	}

	bg, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.c.Runner != nil {
		a.runnerDone = make(chan struct{})
		go func() {
			defer close(a.runnerDone)
			_ = a.c.Runner.Run(bg)
		}()
	}

	if a.c.Collector != nil {
		if err := a.c.Collector.Start(bg); err != nil {
			// the feed is optional; cycles still run from other sources
			a.log.Error("collector start error", applogger.Error(err))
		} else {
			a.log.Info("collector started", applogger.Strings("symbols", a.cfg.Feed.Symbols))
		}
	}

	if a.c.Consumer != nil && a.c.CandlesHandler != nil {
		if err := a.c.Consumer.RegisterHandler(a.c.CandlesHandler); err != nil {
			return err
		}
		if err := a.c.Consumer.Start(bg); err != nil {
			a.log.Error("kafka consumer error", applogger.Error(err))
		} else {
			a.log.Info("kafka consumer started", applogger.String("topic", a.c.CandlesHandler.Topic()))
		}
	}

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			return err
		}
	}
	return nil
}

// Shutdown stops ingress first, then the engine, then closes infrastructure.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")
	var errs []error

	if a.c.HTTP != nil {
		httpCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		if err := a.c.HTTP.Stop(httpCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
		cancel()
	}

	if a.c.Collector != nil {
		if err := a.c.Collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.cancel != nil {
		a.cancel()
	}
	if a.runnerDone != nil {
		<-a.runnerDone
	}

	stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Engine.StopTimeout)
	defer cancel()
	if err := a.c.Engine.Stop(stopCtx); err != nil && !errors.Is(err, usecase.ErrEngineNotRunning) {
		a.log.Error("engine stop error", applogger.Error(err))
		errs = append(errs, err)
	}

	closeAll(a.log, map[string]interface{ Close() error }{
		"publisher": a.c.Publisher,
		"store":     a.c.Store,
	})

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func closeAll(log *applogger.Logger, closers map[string]interface{ Close() error }) {
	var wg sync.WaitGroup
	for name, c := range closers {
		if c == nil {
			continue
		}
		name, c := name, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Close(); err != nil {
				log.Warn("close error", applogger.String("component", name), applogger.Error(err))
			}
		}()
	}
	wg.Wait()
}
