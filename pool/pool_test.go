package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is a minimal Connection used to exercise Pool without a real
// wire connection.
type fakeConn struct {
	id         int
	closed     atomic.Bool
	fatal      bool
	idle       bool
	validateFn func(ctx context.Context) error
}

func newFakeConn(id int) *fakeConn {
	return &fakeConn{id: id, idle: true}
}

func (c *fakeConn) Close() error { c.closed.Store(true); return nil }
func (c *fakeConn) Fatal() bool  { return c.fatal }
func (c *fakeConn) Idle() bool   { return c.idle }
func (c *fakeConn) Validate(ctx context.Context, query string) error {
	if c.validateFn != nil {
		return c.validateFn(ctx)
	}

	return nil
}

func counterDialer() (Dialer, *int32) {
	var n int32
	return func(ctx context.Context) (Connection, error) {
		id := atomic.AddInt32(&n, 1)
		return newFakeConn(int(id)), nil
	}, &n
}

func TestPoolLazyBorrowAndReturn(t *testing.T) {
	dial, _ := counterDialer()
	p, err := New(Config{Size: 2}, dial, nil)
	require.NoError(t, err)

	conn, err := p.Borrow(context.Background(), time.Second)
	require.NoError(t, err)

	stats := p.Stats()
	assert.Equal(t, 1, stats.LiveCount)
	assert.Equal(t, 0, stats.Available)

	require.NoError(t, p.Return(conn))

	stats = p.Stats()
	assert.Equal(t, 1, stats.LiveCount)
	assert.Equal(t, 1, stats.Available)
}

func TestPoolEagerFillCreatesSizeConnections(t *testing.T) {
	dial, n := counterDialer()
	p, err := New(Config{Size: 2, ConnectEagerly: true}, dial, nil)
	require.NoError(t, err)

	assert.EqualValues(t, 2, *n)
	assert.Equal(t, 2, p.Stats().Available)
	assert.Equal(t, 2, p.Stats().LiveCount)
}

func TestPoolAllUsedBlocksThenTimesOut(t *testing.T) {
	dial, _ := counterDialer()
	p, err := New(Config{Size: 2}, dial, nil)
	require.NoError(t, err)

	c1, err := p.Borrow(context.Background(), time.Second)
	require.NoError(t, err)
	c2, err := p.Borrow(context.Background(), time.Second)
	require.NoError(t, err)

	_, err = p.Borrow(context.Background(), 100*time.Millisecond)
	require.ErrorIs(t, err, ErrBorrowTimeout)

	require.NoError(t, p.Return(c1))
	require.NoError(t, p.Return(c2))

	c3, err := p.Borrow(context.Background(), time.Second)
	require.NoError(t, err)
	assert.NotNil(t, c3)
}

func TestPoolFIFOFairness(t *testing.T) {
	dial, _ := counterDialer()
	p, err := New(Config{Size: 1}, dial, nil)
	require.NoError(t, err)

	held, err := p.Borrow(context.Background(), time.Second)
	require.NoError(t, err)

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(1)
		idx := i
		go func() {
			defer wg.Done()
			time.Sleep(time.Duration(idx) * 20 * time.Millisecond)

			conn, err := p.Borrow(context.Background(), 2*time.Second)
			if err != nil {
				return
			}

			mu.Lock()
			order = append(order, idx)
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)
			_ = p.Return(conn)
		}()
	}

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, p.Return(held))

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 3)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestPoolCloseWithOutstandingBorrow(t *testing.T) {
	dial, _ := counterDialer()
	p, err := New(Config{Size: 1, CloseReturnedConnectionOnClosedPool: true}, dial, nil)
	require.NoError(t, err)

	conn, err := p.Borrow(context.Background(), time.Second)
	require.NoError(t, err)

	require.NoError(t, p.Close())

	err = p.Return(conn)
	require.ErrorIs(t, err, ErrPoolClosed)
	assert.True(t, conn.(*fakeConn).closed.Load())
}

func TestPoolCloseReturnedConnectionFlagOff(t *testing.T) {
	dial, _ := counterDialer()
	p, err := New(Config{Size: 1, CloseReturnedConnectionOnClosedPool: false}, dial, nil)
	require.NoError(t, err)

	conn, err := p.Borrow(context.Background(), time.Second)
	require.NoError(t, err)

	require.NoError(t, p.Close())

	err = p.Return(conn)
	require.ErrorIs(t, err, ErrPoolClosed)
	assert.False(t, conn.(*fakeConn).closed.Load())
}

func TestPoolReturnOfFatalConnectionIsClosedNotReused(t *testing.T) {
	dial, _ := counterDialer()
	p, err := New(Config{Size: 1}, dial, nil)
	require.NoError(t, err)

	conn, err := p.Borrow(context.Background(), time.Second)
	require.NoError(t, err)

	conn.(*fakeConn).fatal = true
	require.NoError(t, p.Return(conn))

	assert.True(t, conn.(*fakeConn).closed.Load())
	assert.Equal(t, 0, p.Stats().LiveCount)
}

func TestPoolReturnOfNonIdleConnectionIsClosed(t *testing.T) {
	dial, _ := counterDialer()
	p, err := New(Config{Size: 1}, dial, nil)
	require.NoError(t, err)

	conn, err := p.Borrow(context.Background(), time.Second)
	require.NoError(t, err)

	conn.(*fakeConn).idle = false
	require.NoError(t, p.Return(conn))

	assert.True(t, conn.(*fakeConn).closed.Load())
}

func TestPoolValidationRetriesThenFails(t *testing.T) {
	var dials int32
	dial := func(ctx context.Context) (Connection, error) {
		atomic.AddInt32(&dials, 1)
		c := newFakeConn(int(dials))
		c.validateFn = func(ctx context.Context) error {
			return errors.New("bad connection")
		}

		return c, nil
	}

	p, err := New(Config{Size: 5, ValidationQuery: "SELECT 1"}, dial, nil)
	require.NoError(t, err)

	_, err = p.Borrow(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrValidationFailed)
	assert.EqualValues(t, 3, dials)
}

func TestPoolValidationSucceedsAfterRetry(t *testing.T) {
	var attempts int32
	dial := func(ctx context.Context) (Connection, error) {
		n := atomic.AddInt32(&attempts, 1)
		c := newFakeConn(int(n))
		c.validateFn = func(ctx context.Context) error {
			if n < 2 {
				return errors.New("transient failure")
			}

			return nil
		}

		return c, nil
	}

	p, err := New(Config{Size: 5, ValidationQuery: "SELECT 1"}, dial, nil)
	require.NoError(t, err)

	conn, err := p.Borrow(context.Background(), time.Second)
	require.NoError(t, err)
	assert.NotNil(t, conn)
}

func TestPoolWithConnectionReturnsOnBodyError(t *testing.T) {
	dial, _ := counterDialer()
	p, err := New(Config{Size: 1}, dial, nil)
	require.NoError(t, err)

	bodyErr := errors.New("body failed")
	err = p.WithConnection(context.Background(), time.Second, func(Connection) error {
		return bodyErr
	})
	require.ErrorIs(t, err, bodyErr)

	assert.Equal(t, 1, p.Stats().Available)
}

func TestPoolAccountingInvariant(t *testing.T) {
	dial, _ := counterDialer()
	p, err := New(Config{Size: 3}, dial, nil)
	require.NoError(t, err)

	var conns []Connection
	for i := 0; i < 3; i++ {
		c, err := p.Borrow(context.Background(), time.Second)
		require.NoError(t, err)
		conns = append(conns, c)
	}

	stats := p.Stats()
	assert.Equal(t, 3, stats.LiveCount)
	assert.LessOrEqual(t, stats.LiveCount, 3)

	for _, c := range conns {
		require.NoError(t, p.Return(c))
	}

	stats = p.Stats()
	assert.Equal(t, stats.Available, stats.LiveCount)
}
