package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/okian/gesture/internal/adapters/debugdump"
	"github.com/okian/gesture/internal/adapters/events"
	"github.com/okian/gesture/internal/adapters/http/api"
	"github.com/okian/gesture/internal/adapters/http/auth"
	"github.com/okian/gesture/internal/adapters/http/site"
	"github.com/okian/gesture/internal/adapters/http/swagger"
	"github.com/okian/gesture/internal/adapters/inference"
	"github.com/okian/gesture/internal/adapters/mq/queue"
	"github.com/okian/gesture/internal/adapters/mq/worker"
	"github.com/okian/gesture/internal/adapters/repository"
	service "github.com/okian/gesture/internal/app"
	"github.com/okian/gesture/internal/config"
	"github.com/okian/gesture/internal/domain/pipeline"
	"github.com/okian/gesture/internal/domain/registry"
	"github.com/okian/gesture/internal/domain/transform"
	"github.com/okian/gesture/pkg/logger"
	"github.com/okian/gesture/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 30 * time.Second
	writeTimeout          = 30 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

// stack is the assembled service and everything it must release on shutdown.
type stack struct {
	handler http.Handler
	svc     *service.Service
	closers []func(context.Context) error
}

func (s *stack) close(ctx context.Context) {
	log := logger.Get()
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			log.Warn(ctx, "shutdown step failed", logger.Error(err))
		}
	}
}

func (s *stack) onClose(f func(context.Context) error) {
	s.closers = append(s.closers, f)
}

func closeFn(f func() error) func(context.Context) error {
	return func(context.Context) error { return f() }
}

// build wires the store, inference runtime, registry, event pipeline and
// HTTP routes. On error everything opened so far is released.
func build(ctx context.Context, cfg *config.Config) (_ *stack, err error) {
	log := logger.Get()
	st := &stack{}
	defer func() {
		if err != nil {
			st.close(context.Background())
		}
	}()

	store, err := repository.Open(ctx, cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return nil, err
	}
	st.onClose(closeFn(store.Close))
	if _, statErr := os.Stat(cfg.SeedFile); statErr == nil {
		if _, err := store.SeedIfEmpty(ctx, cfg.SeedFile); err != nil {
			return nil, err
		}
	}

	rt := inference.NewRuntime(inference.WithSharedLibrary(cfg.ONNXRuntimeLib))
	st.onClose(closeFn(rt.Close))
	loader := inference.NewLoader(cfg.ModelsDir, rt)

	catalog := transform.NewCatalog(
		transform.WithHandModel(loader.SubModel(cfg.HandModel)),
		transform.WithSegmentationModel(loader.SubModel(cfg.SegmentationModel), transform.DefaultSegmentationSide),
	)
	st.onClose(closeFn(catalog.Close))

	var execOpts []pipeline.Option
	if cfg.Debug {
		dumper, err := debugdump.New(cfg.DebugDir)
		if err != nil {
			return nil, err
		}
		execOpts = append(execOpts, pipeline.WithObserver(dumper))
		log.Info(ctx, "debug dumps enabled", logger.String("dir", cfg.DebugDir))
	}
	exec := pipeline.New(catalog, execOpts...)

	reg := registry.New(loader, exec, registry.WithTimeout(cfg.InferenceTimeout()))
	st.onClose(closeFn(reg.Close))

	sink, err := events.Open(cfg.Events.Sink, cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic, nil)
	if err != nil {
		return nil, err
	}
	st.onClose(closeFn(sink.Close))
	q := queue.NewInMemoryQueue(queue.WithCapacity(cfg.Events.QueueSize))
	pool := worker.NewPool(cfg.Events.WorkerCount, q, sink)
	poolCtx, stopPool := context.WithCancel(context.WithoutCancel(ctx))
	pool.Start(poolCtx)
	st.onClose(func(ctx context.Context) error {
		defer stopPool()
		return pool.Shutdown(ctx)
	})

	svc := service.New(store, reg,
		service.WithEvents(q),
		service.WithTransformCache(catalog),
		service.WithMaxImagePixels(cfg.MaxImagePixels),
	)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "initial model load failed; serving without models until a reload succeeds", logger.Error(err))
	}
	st.svc = svc

	var gate auth.Gate = auth.AllowAll{}
	if cfg.Auth.Enabled {
		gate = auth.NewJWTGate(cfg.Auth.SecretKey, cfg.Auth.Issuer)
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	site.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithGate(gate),
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
	).Register(ctx, mux)
	st.handler = mux
	return st, nil
}

func (c *cli) serve(ctx context.Context) error {
	log := logger.Get()
	st, err := build(ctx, c.cfg)
	if err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return err
	}

	go collectSystemMetrics(ctx)

	srv := &http.Server{
		Addr:              c.cfg.Addr,
		Handler:           st.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", c.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down server...")
	case err := <-errCh:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			st.close(context.Background())
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	st.close(shutdownCtx)
	log.Info(shutdownCtx, "server stopped")
	return nil
}

func collectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.CollectRuntime()
		}
	}
}
