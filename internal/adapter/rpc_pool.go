package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/skatehive-leaderboard/internal/logging"
)

// RPCPool manages several RPC endpoints for one EVM network with failover on
// rate limiting (429).
// Strategy: stick to the current endpoint until 429, then switch to the next.
type RPCPool struct {
	name         string
	endpoints    []string
	clients      []*ethclient.Client
	currentIndex int
	mu           sync.RWMutex
	cooldowns    map[int]time.Time // when each endpoint was rate limited
	cooldownTime time.Duration
	dial         func(url string) (*ethclient.Client, error)
	logger       *logging.Logger
}

// RPCPoolConfig holds configuration for creating an RPC pool
type RPCPoolConfig struct {
	// Name labels the network in logs and metrics (e.g. "ethereum", "base")
	Name string
	// Endpoints is a list of RPC URLs (e.g., several provider keys)
	Endpoints []string
	// CooldownTime is how long to wait before retrying a rate-limited endpoint
	// Default: 60 seconds
	CooldownTime time.Duration
	Logger       *logging.Logger
}

// NewRPCPool creates a new RPC pool from multiple endpoints
func NewRPCPool(cfg *RPCPoolConfig) (*RPCPool, error) {
	if cfg == nil || len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}

	cooldownTime := cfg.CooldownTime
	if cooldownTime == 0 {
		cooldownTime = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	pool := &RPCPool{
		name:         cfg.Name,
		endpoints:    cfg.Endpoints,
		clients:      make([]*ethclient.Client, len(cfg.Endpoints)),
		cooldowns:    make(map[int]time.Time),
		cooldownTime: cooldownTime,
		dial:         ethclient.Dial,
		logger:       logger.WithField("network", cfg.Name),
	}

	// Connect to first endpoint only (lazy connect others)
	client, err := pool.dial(cfg.Endpoints[0])
	if err != nil {
		return nil, fmt.Errorf("failed to connect to primary RPC endpoint: %w", err)
	}
	pool.clients[0] = client

	pool.logger.WithField("endpoints", len(cfg.Endpoints)).Debug("RPC pool initialized")

	return pool, nil
}

// Name returns the network label
func (p *RPCPool) Name() string {
	return p.name
}

// Caller returns the current endpoint as a contract caller
func (p *RPCPool) Caller() ethereum.ContractCaller {
	return p.GetClient()
}

// GetClient returns the current active client
func (p *RPCPool) GetClient() *ethclient.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.clients[p.currentIndex]
}

// GetCurrentIndex returns the current endpoint index
func (p *RPCPool) GetCurrentIndex() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.currentIndex
}

// EndpointCount returns the number of endpoints in the pool
func (p *RPCPool) EndpointCount() int {
	return len(p.endpoints)
}

// OnRateLimited should be called when a 429 response is received.
// It switches to the next available endpoint and returns an error if all
// endpoints are cooling down.
func (p *RPCPool) OnRateLimited(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cooldowns[p.currentIndex] = time.Now()

	startIndex := p.currentIndex
	for i := 0; i < len(p.endpoints); i++ {
		nextIndex := (p.currentIndex + 1 + i) % len(p.endpoints)

		if cooledAt, exists := p.cooldowns[nextIndex]; exists {
			if time.Since(cooledAt) < p.cooldownTime {
				continue
			}
			delete(p.cooldowns, nextIndex)
		}

		if err := p.switchToEndpoint(nextIndex); err != nil {
			p.logger.WithError(err).Warnf("Failed to switch to endpoint %d", nextIndex)
			continue
		}

		p.logger.WithFields(map[string]interface{}{
			"from": startIndex,
			"to":   nextIndex,
		}).Info("Switched RPC endpoint after rate limit")
		return nil
	}

	return fmt.Errorf("all %d %s RPC endpoints are rate limited: %w", len(p.endpoints), p.name, ErrNoEndpoints)
}

// switchToEndpoint switches to a specific endpoint (must hold lock)
func (p *RPCPool) switchToEndpoint(index int) error {
	if p.clients[index] == nil {
		client, err := p.dial(p.endpoints[index])
		if err != nil {
			return fmt.Errorf("failed to connect to endpoint %d: %w", index, err)
		}
		p.clients[index] = client
	}

	p.currentIndex = index
	return nil
}

// TryResetToPrimary switches back to endpoint 0 once its cooldown has expired.
func (p *RPCPool) TryResetToPrimary() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.currentIndex == 0 {
		return true
	}

	if cooledAt, exists := p.cooldowns[0]; exists {
		if time.Since(cooledAt) < p.cooldownTime {
			return false
		}
		delete(p.cooldowns, 0)
	}

	if err := p.switchToEndpoint(0); err != nil {
		p.logger.WithError(err).Warn("Failed to reset to primary endpoint")
		return false
	}
	return true
}

// Close closes all client connections
func (p *RPCPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, client := range p.clients {
		if client != nil {
			client.Close()
			p.clients[i] = nil
		}
	}
}
