// Package app собирает сервис магазина: хранилище, сервисы заказов и каталога,
// REST и gRPC, outbox worker и служебный HTTP-сервер.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"

	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	grpcsvc "github.com/vladislavdragonenkov/storefront/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const readHeaderTimeout = 5 * time.Second

// App — собранный сервис с открытыми слушателями.
type App struct {
	cfg    Config
	logger *log.Entry

	storage *storage
	pubs    publishers
	idem    idempotencyBackend
	worker  *outbox.Worker

	apiServer    *http.Server
	opsServer    *http.Server
	grpcServer   *grpc.Server
	grpcHealth   *grpchealth.Server
	apiListener  net.Listener
	opsListener  net.Listener
	grpcListener net.Listener
}

// Option настраивает сборку App.
type Option func(*buildOptions)

type buildOptions struct {
	registry *prometheus.Registry
}

// WithRegistry использует отдельный реестр Prometheus вместо глобального.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *buildOptions) { o.registry = reg }
}

// Run собирает сервис и обслуживает запросы до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// New собирает зависимости и открывает слушатели. Порты ":0" допустимы:
// фактические адреса возвращают HTTPAddr, GRPCAddr и MetricsAddr.
func New(ctx context.Context, cfg Config, opts ...Option) (a *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if o.registry != nil {
		registerer, gatherer = o.registry, o.registry
	}

	logger := log.WithField("component", "app")
	a = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	a.storage, err = initStorage(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return nil, err
	}

	orderMetrics := metrics.NewOrderMetricsWithRegisterer(registerer)
	outboxMetrics := metrics.NewOutboxMetrics(registerer)
	idemMetrics := metrics.NewIdempotencyMetrics(registerer)
	httpMetrics := metrics.NewHTTPMetrics(registerer)
	grpcMetrics := metrics.NewGRPCServerMetrics(registerer)

	createOrder := ordering.NewCreateOrderService(a.storage.tx,
		ordering.WithMetrics(orderMetrics),
		ordering.WithLogger(logger.WithField("layer", "create-order")),
	)
	findOrder := ordering.NewFindOrderService(a.storage.orders,
		ordering.WithLogger(logger.WithField("layer", "find-order")),
	)
	customers := catalog.NewCustomerService(a.storage.customers, logger.WithField("layer", "customers"))
	products := catalog.NewProductService(a.storage.products, logger.WithField("layer", "products"))

	a.pubs = initPublishers(cfg, logger.WithField("layer", "messaging"))
	workerOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("layer", "outbox")),
		outbox.WithMetrics(outboxMetrics),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if a.pubs.dlq != nil {
		workerOpts = append(workerOpts, outbox.WithDLQPublisher(a.pubs.dlq))
	}
	a.worker = outbox.NewWorker(a.storage.outbox, a.pubs.main, workerOpts...)

	a.idem = initIdempotency(ctx, cfg, logger.WithField("layer", "idempotency"), idempotency.WithCleanupMetrics(idemMetrics))
	idemMiddleware := idempotency.NewMiddleware(a.idem.store, cfg.IdempotencyTTL, logger.WithField("layer", "idempotency"), idemMetrics)

	handler := httpapi.NewHandler(createOrder, findOrder, customers, products, logger.WithField("layer", "http"))
	a.apiServer = &http.Server{
		Handler: httpapi.NewRouter(handler, httpapi.RouterOptions{
			Metrics:     httpMetrics.Middleware,
			Idempotency: idemMiddleware.Handler,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	grpcService := grpcsvc.NewOrderService(createOrder, findOrder,
		grpcsvc.WithIdempotency(a.idem.store, cfg.IdempotencyTTL),
		grpcsvc.WithLogger(logger.WithField("layer", "grpc")),
	)
	a.grpcServer, a.grpcHealth = grpcsvc.NewServer(grpcService, grpcMetrics, logger.WithField("layer", "grpc"))

	a.opsServer = &http.Server{
		Handler:           opsHandler(a.healthHandler(), promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	if a.apiListener, err = net.Listen("tcp", cfg.HTTPAddr); err != nil {
		return nil, fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}
	if a.grpcListener, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
		return nil, fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	if a.opsListener, err = net.Listen("tcp", cfg.MetricsAddr); err != nil {
		return nil, fmt.Errorf("listen metrics %s: %w", cfg.MetricsAddr, err)
	}
	return a, nil
}

// HTTPAddr возвращает фактический адрес REST API.
func (a *App) HTTPAddr() string { return a.apiListener.Addr().String() }

func (a *App) GRPCAddr() string { return a.grpcListener.Addr().String() }

func (a *App) MetricsAddr() string { return a.opsListener.Addr().String() }

func (a *App) healthHandler() *health.Handler {
	h := health.NewHandler(version.GetVersion())
	if a.storage.pinger != nil {
		h.RegisterChecker("postgres", health.NewPingChecker("postgres", a.storage.pinger))
	}
	if a.idem.redis != nil {
		h.RegisterOptional("redis", health.NewSimpleChecker("redis", a.idem.ping))
	}
	return h
}

// opsHandler обслуживает /metrics, /healthz, /livez и /readyz.
func opsHandler(healthHandler *health.Handler, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

// Run обслуживает запросы до отмены ctx или падения одного из серверов,
// затем останавливает всё и освобождает ресурсы.
func (a *App) Run(ctx context.Context) error {
	defer a.release()

	a.logger.WithFields(version.Fields()).WithFields(log.Fields{
		"http_addr":    a.HTTPAddr(),
		"grpc_addr":    a.GRPCAddr(),
		"metrics_addr": a.MetricsAddr(),
		"storage":      a.cfg.StorageDriver,
	}).Info("storefront is starting")

	workCtx, stopWork := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.worker.Run(workCtx)
	}()
	if a.idem.cleanup != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.idem.cleanup.Run(workCtx)
		}()
	}

	errCh := make(chan error, 3)
	go func() { errCh <- serveHTTP(a.apiServer, a.apiListener) }()
	go func() { errCh <- serveHTTP(a.opsServer, a.opsListener) }()
	go func() { errCh <- a.grpcServer.Serve(a.grpcListener) }()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		runErr = ctx.Err()
	case err := <-errCh:
		a.logger.WithError(err).Error("server stopped unexpectedly")
		runErr = err
	}

	a.grpcHealth.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	shutdownHTTP(shutdownCtx, a.apiServer, a.logger)
	stopGRPC(shutdownCtx, a.grpcServer, a.logger)

	// Outbox останавливается после серверов: заказы, принятые до остановки, успевают попасть в очередь.
	stopWork()
	wg.Wait()

	shutdownHTTP(shutdownCtx, a.opsServer, a.logger)
	a.logger.Info("storefront stopped")
	return runErr
}

func (a *App) release() {
	a.pubs.close(a.logger)
	a.idem.close(a.logger)
	for _, lis := range []net.Listener{a.apiListener, a.grpcListener, a.opsListener} {
		if lis != nil {
			_ = lis.Close()
		}
	}
	if a.storage != nil {
		if err := a.storage.close(); err != nil {
			a.logger.WithError(err).Warn("failed to close storage")
		}
		a.storage = nil
	}
	a.pubs = publishers{}
	a.idem = idempotencyBackend{}
}

func serveHTTP(srv *http.Server, lis net.Listener) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(ctx context.Context, srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// stopGRPC ждёт завершения активных вызовов, по истечении ctx останавливает сервер принудительно.
func stopGRPC(ctx context.Context, srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		logger.Warn("graceful stop timed out, forcing stop")
		srv.Stop()
		<-stopped
	}
}
