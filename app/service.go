// Package app wires the predictor, its stores, triggers and HTTP surface
// into a runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	apirefresh "github.com/lubricentro/usagepredict/api/refresh"
	"github.com/lubricentro/usagepredict/api/vehicles"
	"github.com/lubricentro/usagepredict/config"
	"github.com/lubricentro/usagepredict/core/lock"
	coremetrics "github.com/lubricentro/usagepredict/core/metrics"
	coremon "github.com/lubricentro/usagepredict/core/monitoring"
	"github.com/lubricentro/usagepredict/core/prediction"
	corestore "github.com/lubricentro/usagepredict/core/store"
	"github.com/lubricentro/usagepredict/core/trigger"
	"github.com/lubricentro/usagepredict/infra/amqp"
	"github.com/lubricentro/usagepredict/infra/cache"
	"github.com/lubricentro/usagepredict/infra/logger"
	"github.com/lubricentro/usagepredict/infra/metrics"
	"github.com/lubricentro/usagepredict/infra/monitoring"
	"github.com/lubricentro/usagepredict/infra/mqtt"
	infrastore "github.com/lubricentro/usagepredict/infra/store"
	"github.com/lubricentro/usagepredict/internal/eventbus"
	"github.com/lubricentro/usagepredict/jobs/refresh"
)

// Service orchestrates the predictor, the batch job and the triggers.
type Service struct {
	cfg       *config.Config
	log       logger.Logger
	store     corestore.Store
	predictor *prediction.Predictor
	job       *refresh.Job
	bus       *eventbus.Bus[prediction.Result]
	monitor   coremon.Monitor

	redis     *redis.Client
	cache     resultCache
	publisher mqtt.Publisher
	mqtt      *mqtt.PahoClient
	consumer  *amqp.Consumer
	handler   http.Handler

	pending     *inflight
	fanDone     <-chan struct{}
	stopFanOut  context.CancelFunc
	stopDropped func()
}

type options struct {
	consumers bool
	store     corestore.Store
	cache     resultCache
	publisher mqtt.Publisher
}

// Option customises New.
type Option func(*options)

// WithoutConsumers skips the MQTT subscription and the AMQP consumer, for
// one-shot commands.
func WithoutConsumers() Option { return func(o *options) { o.consumers = false } }

// WithStore uses s instead of opening cfg.Store.
func WithStore(s corestore.Store) Option { return func(o *options) { o.store = s } }

// WithCache uses c instead of the Redis prediction cache.
func WithCache(c resultCache) Option { return func(o *options) { o.cache = c } }

// WithPublisher sends predictions to p instead of the MQTT broker.
func WithPublisher(p mqtt.Publisher) Option { return func(o *options) { o.publisher = p } }

// New creates a Service from the configuration. ctx bounds the lifetime of
// the trigger handlers.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (svc *Service, err error) {
	o := options{consumers: true}
	for _, fn := range opts {
		fn(&o)
	}
	logger.Configure(cfg.Logging.Level, cfg.Logging.Console)
	s := &Service{cfg: cfg, log: logger.New("service"), pending: newInflight()}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if s.monitor, err = monitoring.NewSentryMonitor(cfg.Sentry); err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	s.store = o.store
	if s.store == nil {
		if s.store, err = infrastore.Open(ctx, cfg.Store, logger.New("store")); err != nil {
			return nil, err
		}
	}

	s.bus = eventbus.New[prediction.Result](0)
	if s.stopDropped, err = metrics.RegisterDroppedEvents(nil, s.bus.Dropped); err != nil {
		s.log.Warnf("register fan-out metrics: %v", err)
	}
	s.predictor, err = prediction.NewPredictor(s.store, s.store, cfg.Prediction, logger.New("predictor"),
		prediction.WithRecorder(sink),
		prediction.WithListener(s.onPersisted))
	if err != nil {
		return nil, err
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis.Enabled() {
		if s.redis, err = cache.NewClient(ctx, cfg.Redis); err != nil {
			return nil, err
		}
		s.cache = cache.NewPredictionCache(s.redis, cfg.Redis)
		locker = cache.NewLocker(s.redis, cfg.Redis)
	}
	if o.cache != nil {
		s.cache = o.cache
	}

	jobOpts := []refresh.Option{refresh.WithLocker(locker), refresh.WithMonitor(s.monitor)}
	if rec, ok := sink.(coremetrics.RefreshRecorder); ok {
		jobOpts = append(jobOpts, refresh.WithRecorder(rec))
	}
	if s.job, err = refresh.New(s.store, s.predictor, cfg.Refresh, logger.New("refresh"), jobOpts...); err != nil {
		return nil, err
	}

	handler := trigger.NewHandler(s.predictor, locker, cfg.Refresh.LockTTL(), logger.New("trigger"), s.monitor)
	if cfg.MQTT.Enabled() {
		mqttOpts := []mqtt.Option{mqtt.WithMonitor(s.monitor)}
		if o.consumers {
			mqttOpts = append(mqttOpts, mqtt.WithTrigger(ctx, func(ctx context.Context, ev trigger.Event) {
				// MQTT has no redelivery; a lock still held after the wait loses the event
				if _, err := handler.Handle(ctx, ev); errors.Is(err, lock.ErrHeld) {
					s.log.Errorf("trigger for work order %s dropped: vehicle %s locked", ev.WorkOrderID, ev.VehicleID)
				}
			}))
		}
		if s.mqtt, err = mqtt.NewPahoClient(cfg.MQTT, mqttOpts...); err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		s.publisher = s.mqtt
	}
	if o.publisher != nil {
		s.publisher = o.publisher
	}
	if s.publisher != nil {
		s.startFanOut()
	}
	if cfg.AMQP.Enabled() && o.consumers {
		if s.consumer, err = amqp.Dial(cfg.AMQP, handler, logger.New("amqp")); err != nil {
			return nil, err
		}
	}

	s.handler = s.routes()
	return s, nil
}

func (s *Service) routes() http.Handler {
	mux := http.NewServeMux()
	var c vehicles.Cache
	if s.cache != nil {
		c = s.cache
	}
	vehicles.NewHandler(s.store, s.predictor, c, s.cfg.Prediction.HistoryLimit, logger.New("api")).Register(mux)
	mux.Handle("/api/refresh", apirefresh.NewHandler(s.job, s.cfg.HTTP.Token))
	mux.HandleFunc("GET /healthz", s.healthz)
	return mux
}

// healthz reports 503 when the store does not answer a ping.
func (s *Service) healthz(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(corestore.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.log.Warnf("health check: %v", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler { return s.handler }

// Store returns the persistence backend.
func (s *Service) Store() corestore.Store { return s.store }

// Predictor returns the usage predictor.
func (s *Service) Predictor() *prediction.Predictor { return s.predictor }

// Run starts the service and blocks until the context is cancelled or a
// listener fails.
func (s *Service) Run(ctx context.Context) error {
	defer s.monitor.Recover()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.job.Start(gctx)
		<-gctx.Done()
		return nil
	})
	if s.consumer != nil {
		g.Go(func() error {
			if err := s.consumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("amqp consumer: %w", err)
			}
			return nil
		})
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		g.Go(func() error { return metrics.StartPromServer(gctx, addr) })
	}
	if s.cfg.HTTP.Addr != "" {
		g.Go(func() error { return s.serveHTTP(gctx) })
	}
	s.log.Infof("service started")
	return g.Wait()
}

func (s *Service) serveHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.HTTP.ReadTimeout(),
		ReadTimeout:       s.cfg.HTTP.ReadTimeout(),
		WriteTimeout:      s.cfg.HTTP.WriteTimeout(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnf("http shutdown: %v", err)
		}
	}()
	s.log.Infof("serving API on %s", s.cfg.HTTP.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// RefreshOnce runs one batch and waits until its predictions are
// published.
func (s *Service) RefreshOnce(ctx context.Context) (refresh.Summary, error) {
	sum, err := s.job.Run(ctx)
	s.pending.wait()
	return sum, err
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			s.log.Warnf("amqp close: %v", err)
		}
	}
	// drain queued predictions before the broker connection goes away
	if s.bus != nil {
		s.bus.Close()
	}
	if s.fanDone != nil {
		<-s.fanDone
		s.stopFanOut()
	}
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if s.stopDropped != nil {
		s.stopDropped()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.Warnf("redis close: %v", err)
		}
	}
	if s.monitor != nil {
		s.monitor.Flush(2 * time.Second)
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
