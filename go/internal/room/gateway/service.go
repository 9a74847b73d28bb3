// Package gateway pushes room state and events to websocket clients and
// accepts low-latency participant actions over the same connection.
package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service ties together the websocket, state and event consumption parts.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	source            EventSource
}

// NewService creates a gateway over cm. Events arrive through source.
func NewService(cm *ConnectionManager, provider StateProvider, source EventSource) *Service {
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, provider),
		stateHandler:      NewStateHandler(provider, cm.deps.Clock),
		source:            source,
	}
}

// Start runs the gateway until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting room gateway service")

	go s.connectionManager.Start(ctx)
	go func() {
		if err := s.source.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("room gateway service shutting down")
	return s.Stop()
}

// Stop stops event consumption. Connections close with the context passed
// to Start.
func (s *Service) Stop() error {
	if err := s.source.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop event consumer")
	}
	log.Info().Msg("room gateway service stopped")
	return nil
}

// RegisterRoutes registers the websocket and state routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("room gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
