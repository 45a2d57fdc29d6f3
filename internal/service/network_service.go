package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/Harshitk-cp/junctree/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNetworkNotFound = errors.New("network not found")
	ErrNetworkExists   = errors.New("network name already taken")
	ErrInvalidNetwork  = errors.New("invalid network definition")
)

type loaded struct {
	net      *Network
	lastUsed time.Time
}

// NetworkService persists network definitions and keeps their compiled
// form in memory. Evidence lives only in memory and is lost when a network
// is evicted or the server restarts.
type NetworkService struct {
	store  domain.NetworkStore
	opts   Options
	logger *zap.Logger

	mu    sync.Mutex
	cache map[uuid.UUID]*loaded
	now   func() time.Time
}

func NewNetworkService(s domain.NetworkStore, opts Options, logger *zap.Logger) *NetworkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &NetworkService{
		store:  s,
		opts:   opts,
		logger: logger,
		cache:  make(map[uuid.UUID]*loaded),
		now:    time.Now,
	}
}

// Create validates def by compiling it, then stores it.
func (s *NetworkService) Create(ctx context.Context, name string, def domain.NetworkDefinition) (*domain.Network, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidNetwork)
	}
	net, err := FromDefinition(def, s.opts)
	if err != nil {
		return nil, err
	}
	if _, err := net.Compile(); err != nil {
		return nil, err
	}

	n := &domain.Network{Name: name, Definition: def}
	if err := s.store.Create(ctx, n); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrNetworkExists
		}
		return nil, err
	}

	s.put(n.ID, net)
	s.logger.Info("network created",
		zap.String("network_id", n.ID.String()),
		zap.String("name", name),
		zap.Int("variables", len(def.Variables)))
	return n, nil
}

func (s *NetworkService) Get(ctx context.Context, id uuid.UUID) (*domain.Network, error) {
	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNetworkNotFound
		}
		return nil, err
	}
	return n, nil
}

func (s *NetworkService) List(ctx context.Context, limit int) ([]domain.Network, error) {
	return s.store.List(ctx, limit)
}

func (s *NetworkService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNetworkNotFound
		}
		return err
	}
	s.mu.Lock()
	delete(s.cache, id)
	s.opts.Metrics.SetNetworks(len(s.cache))
	s.mu.Unlock()
	s.logger.Info("network deleted", zap.String("network_id", id.String()))
	return nil
}

// Load returns the in-memory network for id, building it from its stored
// definition on first use.
func (s *NetworkService) Load(ctx context.Context, id uuid.UUID) (*Network, error) {
	s.mu.Lock()
	if l, ok := s.cache[id]; ok {
		l.lastUsed = s.now()
		s.mu.Unlock()
		return l.net, nil
	}
	s.mu.Unlock()

	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	net, err := FromDefinition(n.Definition, s.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: stored definition: %v", ErrInvalidNetwork, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another request may have loaded it meanwhile; keep the first so its
	// evidence is not lost.
	if l, ok := s.cache[id]; ok {
		l.lastUsed = s.now()
		return l.net, nil
	}
	s.cache[id] = &loaded{net: net, lastUsed: s.now()}
	s.opts.Metrics.SetNetworks(len(s.cache))
	return net, nil
}

func (s *NetworkService) put(id uuid.UUID, net *Network) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[id] = &loaded{net: net, lastUsed: s.now()}
	s.opts.Metrics.SetNetworks(len(s.cache))
}

// Evict drops networks unused for longer than idle and reports how many
// were dropped.
func (s *NetworkService) Evict(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-idle)
	n := 0
	for id, l := range s.cache {
		if l.lastUsed.Before(cutoff) {
			delete(s.cache, id)
			n++
		}
	}
	s.opts.Metrics.SetNetworks(len(s.cache))
	return n
}

// Loaded is the number of networks held in memory.
func (s *NetworkService) Loaded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

func (s *NetworkService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
