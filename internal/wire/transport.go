package wire

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	pgerr "github.com/corvidbase/pgwire/errors"
)

// Transport is the pluggable duplex byte stream the protocol engine is
// driven over. Implementations need not be a TCP socket — tests drive the
// state machine over an in-memory pipe implementing the same contract.
//
// ReadFull and WriteFull block until exactly len(buf) bytes have been
// transferred, the deadline elapses, or the stream closes. A zero timeout
// means no deadline.
type Transport interface {
	ReadFull(buf []byte, timeout time.Duration) error
	WriteFull(buf []byte, timeout time.Duration) error
	Close() error
}

// Dial opens a TCP transport to the given host:port.
func Dial(network, address string, timeout time.Duration) (Transport, error) {
	conn, err := net.DialTimeout(network, address, timeout)
	if err != nil {
		return nil, err
	}

	return NewConnTransport(conn), nil
}

// NewConnTransport adapts a net.Conn (or any ReadWriteCloser supporting
// deadlines) into a Transport.
func NewConnTransport(conn net.Conn) Transport {
	return &connTransport{conn: conn}
}

type connTransport struct {
	conn net.Conn
}

func (t *connTransport) ReadFull(buf []byte, timeout time.Duration) error {
	if timeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		defer t.conn.SetReadDeadline(time.Time{}) //nolint:errcheck
	}

	_, err := io.ReadFull(t.conn, buf)
	return translateTimeout(err)
}

func (t *connTransport) WriteFull(buf []byte, timeout time.Duration) error {
	if timeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		defer t.conn.SetWriteDeadline(time.Time{}) //nolint:errcheck
	}

	for len(buf) > 0 {
		n, err := t.conn.Write(buf)
		if err != nil {
			return translateTimeout(err)
		}

		buf = buf[n:]
	}

	return nil
}

func (t *connTransport) Close() error {
	return t.conn.Close()
}

// translateTimeout maps a net.Error timeout into ErrTransportTimeout and a
// closed stream (EOF or use-of-closed-connection) into ErrTransportClosed,
// leaving other errors untouched.
func translateTimeout(err error) error {
	if err == nil {
		return nil
	}

	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return fmt.Errorf("%w: %w", pgerr.ErrTransportTimeout, err)
	}

	if err == io.EOF || err == io.ErrUnexpectedEOF || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%w: %w", pgerr.ErrTransportClosed, err)
	}

	return err
}
