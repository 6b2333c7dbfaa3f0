// Package pool implements a bounded, FIFO-fair, validated connection pool,
// independent of the PostgreSQL wire details: it operates
// over the small Connection interface below so it can be exercised with a
// fake in tests and wired to *pgwire.Conn in the parent package.
package pool

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pgerr "github.com/corvidbase/pgwire/errors"
)

// Connection is the subset of connection behavior the pool needs: whether
// it is safe to reuse, and how to validate/dispose of it.
type Connection interface {
	// Close releases the connection's underlying resources.
	Close() error
	// Fatal reports whether the connection suffered a transport or protocol
	// failure and must not be reused.
	Fatal() bool
	// Idle reports whether the connection's transaction status is Idle — a
	// connection returned mid-transaction is never reinserted into the pool.
	Idle() bool
	// Validate runs the pool's configured validation query, if any, on this
	// connection under ctx's deadline.
	Validate(ctx context.Context, query string) error
}

// Dialer creates a brand new, ready-to-use Connection.
type Dialer func(ctx context.Context) (Connection, error)

// Config collects the pool's tunables.
type Config struct {
	Size                                   int
	ConnectEagerly                         bool
	ValidationQuery                        string
	BorrowTimeout                          time.Duration
	CloseReturnedConnectionOnClosedPool    bool
}

var (
	// ErrPoolClosed is returned by Borrow/Return once the pool has been closed.
	ErrPoolClosed = pgerr.ErrPoolClosed
	// ErrBorrowTimeout is returned when no connection becomes available
	// before the borrow timeout elapses.
	ErrBorrowTimeout = pgerr.ErrBorrowTimeout
	// ErrValidationFailed is returned after three successive validation
	// failures while trying to serve a single borrow.
	ErrValidationFailed = pgerr.ErrValidationFailed
)

// waiter is one entry in the FIFO queue of blocked borrowers; it is
// fulfilled by exactly one of Return, a new eager/lazy-filled connection, or
// Close.
type waiter struct {
	result chan waitResult
}

type waitResult struct {
	conn Connection
	err  error
}

// Pool is a bounded, thread-safe dispenser of validated connections.
type Pool struct {
	cfg    Config
	dial   Dialer
	logger *slog.Logger

	mu        sync.Mutex
	available []Connection
	waiters   *list.List // of *waiter, oldest at Front
	liveCount int
	closed    bool

	metrics *Metrics
}

// New constructs a Pool. If cfg.ConnectEagerly is set, cfg.Size connections
// are dialed synchronously before New returns.
func New(cfg Config, dial Dialer, logger *slog.Logger) (*Pool, error) {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}

	if cfg.BorrowTimeout <= 0 {
		cfg.BorrowTimeout = 30 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		cfg:     cfg,
		dial:    dial,
		logger:  logger,
		waiters: list.New(),
		metrics: newMetrics(),
	}

	if cfg.ConnectEagerly {
		for i := 0; i < cfg.Size; i++ {
			conn, err := dial(context.Background())
			if err != nil {
				p.closeAll()
				return nil, fmt.Errorf("pool: eager fill connection %d/%d: %w", i+1, cfg.Size, err)
			}

			p.available = append(p.available, conn)
			p.liveCount++
		}

		p.metrics.setAvailable(len(p.available))
		p.metrics.setLive(p.liveCount)
	}

	return p, nil
}

// Borrow returns a ready connection, waiting at most timeout (cfg.BorrowTimeout
// if timeout <= 0). When no connection is available, no borrower is queued
// and the pool is below Size, it lazily dials a new connection. When
// ValidationQuery is set, every connection is validated before it is handed
// out, freshly dialed or reused alike.
func (p *Pool) Borrow(ctx context.Context, timeout time.Duration) (Connection, error) {
	start := time.Now()
	defer p.metrics.observeBorrow(start)

	if timeout <= 0 {
		timeout = p.cfg.BorrowTimeout
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	for attempt := 0; ; attempt++ {
		conn, err := p.borrowOnce(ctx, deadline)
		if err != nil {
			return nil, err
		}

		if p.cfg.ValidationQuery == "" {
			return conn, nil
		}

		vctx, cancel := context.WithDeadline(ctx, deadline)
		verr := conn.Validate(vctx, p.cfg.ValidationQuery)
		cancel()

		if verr == nil {
			return conn, nil
		}

		p.logger.Warn("pool: validation failed, discarding connection", slog.Any("err", verr), slog.Int("attempt", attempt+1))
		p.discard(conn)
		p.metrics.incValidationFailure()

		if attempt >= 2 {
			return nil, ErrValidationFailed
		}
	}
}

// borrowOnce resolves one connection without applying validation: either
// from the available queue, from a freshly dialed connection (if under
// capacity), or by joining the FIFO waiter queue.
func (p *Pool) borrowOnce(ctx context.Context, deadline time.Time) (Connection, error) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	// Existing waiters take priority over a fresh borrower even when
	// available/capacity would otherwise let it skip the queue — this is
	// what keeps FIFO ordering intact across validation discards.
	if n := len(p.available); n > 0 && p.waiters.Len() == 0 {
		conn := p.available[n-1]
		p.available = p.available[:n-1]
		p.metrics.setAvailable(len(p.available))
		p.mu.Unlock()

		return conn, nil
	}

	if p.liveCount < p.cfg.Size && p.waiters.Len() == 0 {
		p.liveCount++
		p.metrics.setLive(p.liveCount)
		p.mu.Unlock()

		conn, err := p.dial(ctx)
		if err != nil {
			p.mu.Lock()
			p.liveCount--
			p.metrics.setLive(p.liveCount)
			p.mu.Unlock()

			return nil, fmt.Errorf("pool: dialing connection: %w", err)
		}

		return conn, nil
	}

	w := &waiter{result: make(chan waitResult, 1)}
	elem := p.waiters.PushBack(w)
	p.metrics.setWaiters(p.waiters.Len())
	p.mu.Unlock()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case res := <-w.result:
		return res.conn, res.err
	case <-ctx.Done():
		p.cancelWaiter(elem, w)
		return nil, ctx.Err()
	case <-timer.C:
		p.cancelWaiter(elem, w)
		return nil, ErrBorrowTimeout
	}
}

// cancelWaiter removes w from the queue unless it was already fulfilled
// between the timeout/cancellation firing and the critical section being
// entered here, in which case the fulfillment is honored instead of lost.
func (p *Pool) cancelWaiter(elem *list.Element, w *waiter) {
	p.mu.Lock()

	for e := p.waiters.Front(); e != nil; e = e.Next() {
		if e == elem {
			p.waiters.Remove(e)
			p.metrics.setWaiters(p.waiters.Len())
			p.mu.Unlock()
			return
		}
	}

	p.mu.Unlock()

	// Already popped by Return or Close, each of which sends exactly one
	// result; receive it so the connection it carries is not leaked, and
	// hand it back to the pool.
	res := <-w.result
	if res.conn != nil {
		p.returnInternal(res.conn)
	}
}

// Return releases a previously borrowed connection. A Fatal or non-Idle
// connection is closed rather than reinserted.
func (p *Pool) Return(conn Connection) error {
	p.mu.Lock()

	if p.closed {
		closeReturned := p.cfg.CloseReturnedConnectionOnClosedPool
		p.mu.Unlock()

		if closeReturned {
			_ = conn.Close()
		}

		return ErrPoolClosed
	}

	if conn.Fatal() || !conn.Idle() {
		p.liveCount--
		p.metrics.setLive(p.liveCount)
		p.mu.Unlock()

		return conn.Close()
	}

	p.mu.Unlock()
	p.returnInternal(conn)

	return nil
}

// returnInternal hands conn to the oldest waiter if one exists, else
// enqueues it in available. It must not be called while holding p.mu.
func (p *Pool) returnInternal(conn Connection) {
	p.mu.Lock()

	if front := p.waiters.Front(); front != nil {
		w := p.waiters.Remove(front).(*waiter)
		p.metrics.setWaiters(p.waiters.Len())
		p.mu.Unlock()

		w.result <- waitResult{conn: conn}
		return
	}

	p.available = append(p.available, conn)
	p.metrics.setAvailable(len(p.available))
	p.mu.Unlock()
}

// discard closes conn and decrements live-count without touching available
// or waiters; used when validation fails and the caller will retry.
func (p *Pool) discard(conn Connection) {
	p.mu.Lock()
	p.liveCount--
	p.metrics.setLive(p.liveCount)
	p.mu.Unlock()

	_ = conn.Close()
}

// WithConnection borrows a connection, runs body, and always returns the
// connection afterward, propagating body's error.
func (p *Pool) WithConnection(ctx context.Context, timeout time.Duration, body func(Connection) error) error {
	conn, err := p.Borrow(ctx, timeout)
	if err != nil {
		return err
	}

	bodyErr := body(conn)

	if retErr := p.Return(conn); retErr != nil && bodyErr == nil {
		return retErr
	}

	return bodyErr
}

// Close marks the pool closed, drains available connections, and fails all
// waiters with ErrPoolClosed. Idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil
	}

	p.closed = true

	for e := p.waiters.Front(); e != nil; e = e.Next() {
		w := e.Value.(*waiter)
		w.result <- waitResult{err: ErrPoolClosed}
	}

	p.waiters.Init()
	p.metrics.setWaiters(0)

	toClose := p.available
	p.available = nil
	p.metrics.setAvailable(0)
	p.mu.Unlock()

	for _, conn := range toClose {
		if err := conn.Close(); err != nil {
			p.logger.Warn("pool: error closing connection during shutdown", slog.Any("err", err))
		}
	}

	return nil
}

func (p *Pool) closeAll() {
	p.mu.Lock()
	conns := p.available
	p.available = nil
	p.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// Stats reports a point-in-time snapshot of the pool's accounting, used by
// tests asserting the `available + in_use == live_count ≤ size` invariant.
type Stats struct {
	Available int
	LiveCount int
	Waiters   int
	Closed    bool
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Available: len(p.available),
		LiveCount: p.liveCount,
		Waiters:   p.waiters.Len(),
		Closed:    p.closed,
	}
}
