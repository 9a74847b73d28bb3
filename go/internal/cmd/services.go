package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzroom/go/internal/room/events"
	"github.com/mcdev12/buzzroom/go/internal/room/gateway"
	"github.com/mcdev12/buzzroom/go/internal/room/media"
	"github.com/mcdev12/buzzroom/go/internal/room/metrics"
	"github.com/mcdev12/buzzroom/go/internal/room/modes"
	"github.com/mcdev12/buzzroom/go/internal/room/orchestrator"
	"github.com/mcdev12/buzzroom/go/internal/room/service"
	"github.com/mcdev12/buzzroom/go/internal/room/store"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Registry     *prometheus.Registry
	Orchestrator *orchestrator.Orchestrator
	Rooms        *service.Service
	Gateway      *gateway.Service
	Limiter      *service.ParticipantLimiter

	// background loops, started by run
	loops []func(ctx context.Context) error
	nc    *nats.Conn
}

// setupServices wires the dependency chain:
// store → repository → orchestrator → RPC service and gateway.
func setupServices(ctx context.Context, cfg Config) (*Services, error) {
	s := &Services{Registry: prometheus.NewRegistry()}
	s.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheus(s.Registry)
	clock := clockwork.NewRealClock()

	presets := modes.Default()
	if cfg.ModesFile != "" {
		loaded, err := modes.Load(cfg.ModesFile)
		if err != nil {
			return nil, err
		}
		presets = loaded
		log.Info().Str("file", cfg.ModesFile).Msg("loaded mode presets")
	}

	var js jetstream.JetStream
	if cfg.NATSURL != "" {
		nc, stream, err := events.Connect(events.NATSConfig{
			URL:           cfg.NATSURL,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			MaxAge:        cfg.EventMaxAge,
		})
		if err != nil {
			return nil, err
		}
		s.nc, js = nc, stream
	}

	backend, err := s.setupStore(ctx, cfg, js)
	if err != nil {
		s.Close()
		return nil, err
	}
	repo := store.NewRepository(backend, store.DefaultRepositoryConfig())
	repo.OnConflict(collector.RecordStoreConflict)

	var (
		publisher events.Publisher
		transport media.Transport = media.Noop{}
		source    func(cm *gateway.ConnectionManager) (gateway.EventSource, error)
	)
	if js != nil {
		if _, err := events.EnsureStream(ctx, js, cfg.EventMaxAge); err != nil {
			s.Close()
			return nil, err
		}
		publisher = events.NewNATSPublisher(js)
		transport = media.NewNATSTransport(s.nc)
		source = func(cm *gateway.ConnectionManager) (gateway.EventSource, error) {
			return gateway.NewEventConsumer(ctx, cm, js, gateway.DefaultJetStreamConsumerConfig())
		}
	} else {
		bus := events.NewBus(256)
		publisher = bus
		source = func(cm *gateway.ConnectionManager) (gateway.EventSource, error) {
			return gateway.NewBusConsumer(cm, bus), nil
		}
	}

	s.Orchestrator = orchestrator.New(orchestrator.Config{
		Repository:        repo,
		Publisher:         metrics.NewPublisher(publisher, collector),
		Media:             transport,
		Metrics:           collector,
		Clock:             clock,
		Presets:           presets,
		CountdownInterval: cfg.CountdownInterval,
	})
	if nt, ok := transport.(*media.NATSTransport); ok {
		s.loops = append(s.loops, func(ctx context.Context) error {
			if err := nt.Listen(ctx, s.Orchestrator); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		})
	}

	s.Limiter = service.NewParticipantLimiter(clock, cfg.SignalRate, cfg.SignalBurst, 10*time.Minute)
	s.loops = append(s.loops, s.sweepLimiter)
	s.Rooms = service.NewService(s.Orchestrator, s.Limiter)

	cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), gateway.Dependencies{
		Watcher: repo,
		Actions: s.Orchestrator,
		Limiter: s.Limiter,
		Metrics: collector,
		Clock:   clock,
	})
	src, err := source(cm)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("setup gateway event source: %w", err)
	}
	s.Gateway = gateway.NewService(cm, repo, src)
	s.loops = append(s.loops, s.Gateway.Start)

	return s, nil
}

func (s *Services) setupStore(ctx context.Context, cfg Config, js jetstream.JetStream) (store.Store, error) {
	log.Info().Str("store", cfg.Store).Msg("setting up room store")

	switch cfg.Store {
	case storeMemory:
		return store.NewMemoryStore(), nil
	case storeNATS:
		if js == nil {
			return nil, fmt.Errorf("STORE=%s requires NATS_URL", storeNATS)
		}
		return store.NewNATSStore(ctx, js, cfg.KVBucket)
	case storePostgres:
		pg, err := setupPostgresStore(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		s.loops = append(s.loops, pg.Run)
		return pg, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func (s *Services) sweepLimiter(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Limiter.Sweep(); n > 0 {
				log.Debug().Int("dropped", n).Msg("swept idle participant limiters")
			}
		}
	}
}

// run starts every background loop.
func (s *Services) run(ctx context.Context) {
	for _, loop := range s.loops {
		go func() {
			if err := loop(ctx); err != nil {
				log.Error().Err(err).Msg("background loop failed")
			}
		}()
	}
}

// Close drains the NATS connection, flushing pending publishes.
func (s *Services) Close() {
	if s.nc == nil {
		return
	}
	if err := s.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("failed to drain NATS connection")
	}
}
