package pgwire

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidbase/pgwire/config"
	pgerr "github.com/corvidbase/pgwire/errors"
	"github.com/corvidbase/pgwire/internal/wire"
)

// discardLogger is the silent logger tests wire into hand-built Conn values
// that skip Connect's own slog.Default() fallback.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pipePair returns two connected in-memory transports, srv standing in for
// the backend this test drives by hand.
func pipePair(t *testing.T) (cli wire.Transport, srv wire.Transport) {
	t.Helper()

	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})

	return wire.NewConnTransport(a), wire.NewConnTransport(b)
}

// acceptStartup drains the StartupMessage a Connect call sends, without
// inspecting its contents, so the fake backend can move on to auth.
func acceptStartup(t *testing.T, r *wire.Reader) {
	t.Helper()

	_, err := r.ReadUntypedMsg()
	require.NoError(t, err)
}

func writeReadyForQuery(w *wire.Writer, status byte) {
	w.Start(wire.FrontendMessage(wire.BackendReady))
	w.AddByte(status)
	_ = w.End()
}

func writeAuthOK(w *wire.Writer) {
	w.Start(wire.FrontendMessage(wire.BackendAuth))
	w.AddInt32(int32(wire.AuthOK))
	_ = w.End()
}

func TestConnectTrustAuth(t *testing.T) {
	cli, srv := pipePair(t)

	done := make(chan struct{})

	go func() {
		defer close(done)

		r := wire.NewReader(nil, srv, 0, time.Second)
		w := wire.NewWriter(nil, srv, time.Second)

		acceptStartup(t, r)
		writeAuthOK(w)
		writeReadyForQuery(w, 'I')
	}()

	cfg := config.Config{Username: "alice", Database: "alice"}
	cfg.Normalize()

	conn, err := Connect(context.Background(), cli, cfg)
	require.NoError(t, err)

	<-done

	assert.Equal(t, PhaseReadyForQuery, conn.Phase())
	assert.Equal(t, TxIdle, conn.TxStatus())
	assert.True(t, conn.Idle())
	assert.False(t, conn.Fatal())
}

func TestConnectCleartextPassword(t *testing.T) {
	cli, srv := pipePair(t)

	done := make(chan struct{})

	go func() {
		defer close(done)

		r := wire.NewReader(nil, srv, 0, time.Second)
		w := wire.NewWriter(nil, srv, time.Second)

		acceptStartup(t, r)

		w.Start(wire.FrontendMessage(wire.BackendAuth))
		w.AddInt32(int32(wire.AuthCleartextPassword))
		_ = w.End()

		tag, _, err := r.ReadTypedMsg()
		require.NoError(t, err)
		require.Equal(t, wire.BackendMessage(wire.FrontendPassword), tag)

		pw, err := r.GetString()
		require.NoError(t, err)
		assert.Equal(t, "s3cret", pw)

		writeAuthOK(w)

		w.Start(wire.FrontendMessage(wire.BackendBackendKeyData))
		w.AddInt32(42)
		w.AddInt32(99)
		_ = w.End()

		writeReadyForQuery(w, 'I')
	}()

	cfg := config.Config{Username: "alice", Password: "s3cret", Database: "alice"}
	cfg.Normalize()

	conn, err := Connect(context.Background(), cli, cfg)
	require.NoError(t, err)

	<-done

	assert.EqualValues(t, 42, conn.BackendPID())
}

func TestConnectAuthFailure(t *testing.T) {
	cli, srv := pipePair(t)

	go func() {
		r := wire.NewReader(nil, srv, 0, time.Second)
		w := wire.NewWriter(nil, srv, time.Second)

		acceptStartup(t, r)

		w.Start(wire.FrontendMessage(wire.BackendErrorResponse))
		w.AddByte('S')
		w.AddString("FATAL")
		w.AddNullTerminate()
		w.AddByte('C')
		w.AddString("28P01")
		w.AddNullTerminate()
		w.AddByte('M')
		w.AddString("password authentication failed")
		w.AddNullTerminate()
		w.AddByte(0)
		_ = w.End()
	}()

	cfg := config.Config{Username: "alice", Password: "wrong"}
	cfg.Normalize()

	_, err := Connect(context.Background(), cli, cfg)
	require.Error(t, err)
}

func TestCheckReadyRejectsFatal(t *testing.T) {
	c := &Conn{phase: PhaseFatal}
	err := c.checkReady()
	require.Error(t, err)
}

func TestCheckReadyNotReadyCarriesHint(t *testing.T) {
	c := &Conn{phase: PhaseStartup}
	err := c.checkReady()
	require.Error(t, err)
	assert.NotEmpty(t, pgerr.GetHint(err))
}

func TestFailAttachesSourceAndLogsFlattened(t *testing.T) {
	c := &Conn{logger: discardLogger()}

	err := c.fail(pgerr.ErrConnectionLost)
	require.Error(t, err)

	src := pgerr.GetSource(err)
	require.NotNil(t, src)
	assert.Contains(t, src.Function, "TestFailAttachesSourceAndLogsFlattened")

	c.mu.Lock()
	phase := c.phase
	c.mu.Unlock()
	assert.Equal(t, PhaseFatal, phase)
}

func TestIdempotentClose(t *testing.T) {
	cli, srv := pipePair(t)
	go func() {
		r := wire.NewReader(nil, srv, 0, time.Second)
		w := wire.NewWriter(nil, srv, time.Second)
		acceptStartup(t, r)
		writeAuthOK(w)
		writeReadyForQuery(w, 'I')
	}()

	cfg := config.Config{Username: "bob"}
	cfg.Normalize()

	conn, err := Connect(context.Background(), cli, cfg)
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
}
