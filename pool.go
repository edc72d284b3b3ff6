package pgxec

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quaydb/pgxec/pgxecconn"
)

// PoolStats tracks connection pool statistics, grounded on client/pool.go's
// PoolStats verbatim.
type PoolStats struct {
	ActiveConnections atomic.Int32
	IdleConnections   atomic.Int32
	TotalConnections  atomic.Int32
	WaitCount         atomic.Int64
	WaitDuration      atomic.Int64 // nanoseconds
	Hits              atomic.Int64
	Misses            atomic.Int64
	Timeouts          atomic.Int64
	Errors            atomic.Int64
}

// Pool manages a pool of *pgxecconn.Connection with automatic idle cleanup
// and health checking, grounded on client/pool.go's ConnectionPool,
// generalized from client.ConnectionInterface to the concrete
// *pgxecconn.Connection type pgxec's wire stack produces.
type Pool struct {
	conns               chan *pgxecconn.Connection
	factory             func(ctx context.Context) (*pgxecconn.Connection, error)
	minIdle             int
	maxOpen             int
	idleTimeout         time.Duration
	healthCheckInterval time.Duration
	stats               PoolStats
	stopCh              chan struct{}
	wg                  sync.WaitGroup
	mu                  sync.RWMutex
	closed              bool
}

// NewPool creates a new connection pool with the given configuration.
func NewPool(
	factory func(ctx context.Context) (*pgxecconn.Connection, error),
	minIdle, maxOpen int,
	idleTimeout, healthCheckInterval time.Duration,
) *Pool {
	if minIdle < 0 {
		minIdle = 0
	}
	if maxOpen < 1 {
		maxOpen = 1
	}
	if minIdle > maxOpen {
		minIdle = maxOpen
	}

	return &Pool{
		conns:               make(chan *pgxecconn.Connection, maxOpen),
		factory:             factory,
		minIdle:             minIdle,
		maxOpen:             maxOpen,
		idleTimeout:         idleTimeout,
		healthCheckInterval: healthCheckInterval,
		stopCh:              make(chan struct{}),
	}
}

// Initialize starts the pool and opens minIdle connections up front.
func (p *Pool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("pool is closed")
	}

	for i := 0; i < p.minIdle; i++ {
		conn, err := p.factory(ctx)
		if err != nil {
			p.closeAllConnectionsLocked()
			return fmt.Errorf("failed to create initial connection: %w", err)
		}
		p.conns <- conn
		p.stats.TotalConnections.Add(1)
		p.stats.IdleConnections.Add(1)
	}

	if p.idleTimeout > 0 {
		p.wg.Add(1)
		go p.cleanupWorker()
	}
	if p.healthCheckInterval > 0 {
		p.wg.Add(1)
		go p.healthCheckWorker()
	}

	return nil
}

// Get acquires a connection from the pool, opening a new one if under
// maxOpen, or waiting for one to be released otherwise.
func (p *Pool) Get(ctx context.Context) (*pgxecconn.Connection, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, fmt.Errorf("pool is closed")
	}
	p.mu.RUnlock()

	startWait := time.Now()
	p.stats.WaitCount.Add(1)

	select {
	case <-ctx.Done():
		p.stats.Timeouts.Add(1)
		return nil, ctx.Err()

	case conn := <-p.conns:
		p.stats.WaitDuration.Add(int64(time.Since(startWait)))
		p.stats.Hits.Add(1)
		p.stats.IdleConnections.Add(-1)

		if !conn.IsAlive() {
			p.stats.TotalConnections.Add(-1)
			conn.Close()
			return p.Get(ctx)
		}
		p.stats.ActiveConnections.Add(1)
		return conn, nil

	default:
		if p.stats.TotalConnections.Load() < int32(p.maxOpen) {
			conn, err := p.factory(ctx)
			if err != nil {
				p.stats.Errors.Add(1)
				return nil, fmt.Errorf("failed to create new connection: %w", err)
			}
			p.stats.WaitDuration.Add(int64(time.Since(startWait)))
			p.stats.Misses.Add(1)
			p.stats.TotalConnections.Add(1)
			p.stats.ActiveConnections.Add(1)
			return conn, nil
		}

		select {
		case <-ctx.Done():
			p.stats.Timeouts.Add(1)
			return nil, ctx.Err()

		case conn := <-p.conns:
			p.stats.WaitDuration.Add(int64(time.Since(startWait)))
			p.stats.Hits.Add(1)
			p.stats.IdleConnections.Add(-1)

			if !conn.IsAlive() {
				p.stats.TotalConnections.Add(-1)
				conn.Close()
				return p.Get(ctx)
			}
			p.stats.ActiveConnections.Add(1)
			return conn, nil
		}
	}
}

// Put returns conn to the pool, closing it instead if the pool is closed,
// full, or the connection is no longer alive.
func (p *Pool) Put(conn *pgxecconn.Connection) {
	if conn == nil {
		return
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()

	if closed {
		conn.Close()
		return
	}

	p.stats.ActiveConnections.Add(-1)

	if !conn.IsAlive() {
		p.stats.TotalConnections.Add(-1)
		conn.Close()
		return
	}

	select {
	case p.conns <- conn:
		p.stats.IdleConnections.Add(1)
	default:
		p.stats.TotalConnections.Add(-1)
		conn.Close()
	}
}

// Stats returns a snapshot of pool statistics.
func (p *Pool) Stats() PoolStats {
	var stats PoolStats
	stats.ActiveConnections.Store(p.stats.ActiveConnections.Load())
	stats.IdleConnections.Store(p.stats.IdleConnections.Load())
	stats.TotalConnections.Store(p.stats.TotalConnections.Load())
	stats.WaitCount.Store(p.stats.WaitCount.Load())
	stats.WaitDuration.Store(p.stats.WaitDuration.Load())
	stats.Hits.Store(p.stats.Hits.Load())
	stats.Misses.Store(p.stats.Misses.Load())
	stats.Timeouts.Store(p.stats.Timeouts.Load())
	stats.Errors.Store(p.stats.Errors.Load())
	return stats
}

// Close stops the background workers and closes every idle connection the
// pool holds. A connection still checked out is closed when it is handed
// back through Put.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeAllConnectionsLocked()
	return nil
}

func (p *Pool) cleanupWorker() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.idleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.cleanupIdleConnections()
		}
	}
}

func (p *Pool) cleanupIdleConnections() {
	now := time.Now()
	currentIdle := int(p.stats.IdleConnections.Load())

	for currentIdle > p.minIdle {
		select {
		case conn := <-p.conns:
			if now.Sub(conn.LastActivity()) > p.idleTimeout {
				p.stats.IdleConnections.Add(-1)
				p.stats.TotalConnections.Add(-1)
				conn.Close()
				currentIdle--
			} else {
				p.conns <- conn
				return
			}
		default:
			return
		}
	}
}

func (p *Pool) healthCheckWorker() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.healthCheckIdleConnections()
		}
	}
}

func (p *Pool) healthCheckIdleConnections() {
	idleCount := int(p.stats.IdleConnections.Load())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < idleCount; i++ {
		select {
		case conn := <-p.conns:
			if err := conn.Ping(ctx); err != nil || !conn.IsAlive() {
				p.stats.IdleConnections.Add(-1)
				p.stats.TotalConnections.Add(-1)
				conn.Close()
			} else {
				p.conns <- conn
			}
		default:
			return
		}
	}
}

func (p *Pool) closeAllConnectionsLocked() {
	for {
		select {
		case conn := <-p.conns:
			conn.Close()
		default:
			return
		}
	}
}
