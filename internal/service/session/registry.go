package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/rasa-chat/backend/internal/service/transport"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrTransportRequired = errors.New("transport client is required")
	ErrRegistryClosed    = errors.New("session registry is shut down")
)

// Registry tracks the controllers of every widget mounted over HTTP.
type Registry struct {
	client transport.Client
	opts   []Option

	mu       sync.RWMutex
	sessions map[string]*Controller
	closed   bool
}

// NewRegistry returns an empty registry whose controllers share client and opts.
func NewRegistry(client transport.Client, opts ...Option) *Registry {
	return &Registry{
		client:   client,
		opts:     opts,
		sessions: make(map[string]*Controller),
	}
}

// Mount creates a fresh controller for a newly loaded widget.
func (r *Registry) Mount(_ context.Context) (*Controller, error) {
	if r.client == nil {
		return nil, ErrTransportRequired
	}

	ctrl := NewController(uuid.NewString(), r.client, r.opts...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	r.sessions[ctrl.ID()] = ctrl

	log.Info().Str("component", "registry").Str("session_id", ctrl.ID()).Msg("session mounted")
	return ctrl, nil
}

// Get looks up a mounted controller.
func (r *Registry) Get(_ context.Context, sessionID string) (*Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctrl, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ctrl, nil
}

// Unmount closes and forgets a controller.
func (r *Registry) Unmount(_ context.Context, sessionID string) error {
	r.mu.Lock()
	ctrl, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	ctrl.Close()

	log.Info().Str("component", "registry").Str("session_id", sessionID).Msg("session unmounted")
	return nil
}

// Len returns the number of mounted sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown closes every controller and waits for in-flight submissions.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]*Controller)
	r.mu.Unlock()

	for _, ctrl := range sessions {
		ctrl.Close()
	}
	for _, ctrl := range sessions {
		ctrl.Wait()
	}
	log.Info().Str("component", "registry").Int("sessions", len(sessions)).Msg("registry shut down")
}
