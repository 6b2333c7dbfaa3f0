// Package pgwire implements an asynchronous PostgreSQL wire-protocol client:
// connection startup/authentication, the simple and extended query flows,
// transaction status tracking, and a bounded connection pool built on top.
package pgwire

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/corvidbase/pgwire/config"
	"github.com/corvidbase/pgwire/internal/auth"
	"github.com/corvidbase/pgwire/internal/convert"
	"github.com/corvidbase/pgwire/internal/wire"

	pgerr "github.com/corvidbase/pgwire/errors"
)

// Phase is the connection's position in the protocol state machine.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseStartup
	PhaseAuthenticating
	PhaseReadyForQuery
	PhaseSimpleQuery
	PhaseExtendedQuery
	PhaseTerminating
	PhaseFatal
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseStartup:
		return "startup"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseReadyForQuery:
		return "ready"
	case PhaseSimpleQuery:
		return "simple-query"
	case PhaseExtendedQuery:
		return "extended-query"
	case PhaseTerminating:
		return "terminating"
	case PhaseFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// TxStatus mirrors the backend's ReadyForQuery transaction status byte.
type TxStatus int

const (
	TxIdle TxStatus = iota
	TxInTransaction
	TxInFailedTransaction
)

// Option configures a Conn during Connect.
type Option func(*Conn)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) { c.logger = logger }
}

// WithConverters overrides the default value-converter registry.
func WithConverters(reg *convert.Registry) Option {
	return func(c *Conn) { c.converters = reg }
}

// WithNoticeHandler overrides the default (logging) NoticeResponse sink.
func WithNoticeHandler(h NoticeHandler) Option {
	return func(c *Conn) { c.noticeHandler = h }
}

// Conn drives one PostgreSQL wire-protocol session over a single transport.
// A Conn is not safe for concurrent use by multiple goroutines issuing
// queries; it is designed to be owned by exactly one borrower at a time
// (see pool.Pool), matching the protocol's strictly serialized message flow.
type Conn struct {
	logger    *slog.Logger
	transport wire.Transport
	reader    *wire.Reader
	writer    *wire.Writer

	converters *convert.Registry

	mu                   sync.Mutex
	phase                Phase
	txStatus             TxStatus
	parameters           map[string]string
	backendPID           uint32
	secretKey            uint32
	closed               bool
	notificationHandlers map[string]NotificationHandler

	noticeHandler NoticeHandler
}

// Connect performs the startup and authentication handshake over transport
// and returns a Conn in the ReadyForQuery phase.
func Connect(ctx context.Context, transport wire.Transport, cfg config.Config, opts ...Option) (*Conn, error) {
	cfg.Normalize()

	c := &Conn{
		transport:            transport,
		converters:           convert.NewDefaultRegistry(),
		parameters:           make(map[string]string),
		notificationHandlers: make(map[string]NotificationHandler),
		phase:                PhaseConnecting,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.noticeHandler == nil {
		c.noticeHandler = defaultNoticeHandler(c.logger)
	}

	c.reader = wire.NewReader(c.logger, transport, 0, cfg.IOTimeout)
	c.writer = wire.NewWriter(c.logger, transport, cfg.IOTimeout)

	c.phase = PhaseStartup
	if err := c.sendStartup(cfg); err != nil {
		return nil, c.fail(err)
	}

	if err := c.authenticate(ctx, cfg); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.phase = PhaseReadyForQuery
	c.mu.Unlock()

	c.logger.Debug("pgwire: connection ready")
	return c, nil
}

// sendStartup writes the untyped StartupMessage: protocol version followed
// by the sorted parameter pairs and a final zero byte.
func (c *Conn) sendStartup(cfg config.Config) error {
	params := cfg.StartupParameters()

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	c.writer.StartUntyped()
	c.writer.AddInt32(int32(wire.Version30))

	for _, k := range keys {
		c.writer.AddString(k)
		c.writer.AddNullTerminate()
		c.writer.AddString(params[k])
		c.writer.AddNullTerminate()
	}

	c.writer.AddByte(0)
	return c.writer.End()
}

// authenticate consumes Authentication*/ParameterStatus/BackendKeyData
// messages until ReadyForQuery, dispatching each auth challenge to the
// matching internal/auth routine.
func (c *Conn) authenticate(ctx context.Context, cfg config.Config) error {
	c.mu.Lock()
	c.phase = PhaseAuthenticating
	c.mu.Unlock()

	var scramClient *auth.ScramClient

	for {
		if err := ctx.Err(); err != nil {
			return c.fail(err)
		}

		tag, _, err := c.reader.ReadTypedMsg()
		if err != nil {
			return c.fail(err)
		}

		switch tag {
		case wire.BackendAuth:
			authType, err := c.reader.GetInt32()
			if err != nil {
				return c.fail(err)
			}

			switch wire.AuthType(authType) {
			case wire.AuthOK:
				continue
			case wire.AuthCleartextPassword:
				if err := c.sendPasswordMessage(cfg.Password); err != nil {
					return c.fail(err)
				}
			case wire.AuthMD5Password:
				salt, err := c.reader.GetBytes(4)
				if err != nil {
					return c.fail(err)
				}

				var s [4]byte
				copy(s[:], salt)

				hashed := auth.MD5Password(cfg.Username, cfg.Password, s)
				if err := c.sendPasswordMessage(hashed); err != nil {
					return c.fail(err)
				}
			case wire.AuthSASL:
				mechs := auth.ParseMechanisms(c.reader.Msg)
				if !auth.SupportsScram(mechs) {
					detail := fmt.Sprintf("server offered mechanisms %v, client supports %s", mechs, auth.ScramMechanism)
					return c.fail(pgerr.WithDetail(pgerr.ErrUnsupportedAuth, detail))
				}

				scramClient, err = auth.NewScramClient(cfg.Username, cfg.Password)
				if err != nil {
					return c.fail(err)
				}

				first := scramClient.FirstMessage()

				c.writer.Start(wire.FrontendPassword)
				c.writer.AddString(auth.ScramMechanism)
				c.writer.AddNullTerminate()
				c.writer.AddInt32(int32(len(first)))
				c.writer.AddBytes(first)

				if err := c.writer.End(); err != nil {
					return c.fail(err)
				}
			case wire.AuthSASLContinue:
				if scramClient == nil {
					return c.fail(fmt.Errorf("%w: unexpected AuthenticationSASLContinue", pgerr.ErrProtocolViolation))
				}

				final, err := scramClient.HandleServerFirst(c.reader.Msg)
				if err != nil {
					return c.fail(err)
				}

				c.writer.Start(wire.FrontendPassword)
				c.writer.AddBytes(final)

				if err := c.writer.End(); err != nil {
					return c.fail(err)
				}
			case wire.AuthSASLFinal:
				if scramClient == nil {
					return c.fail(fmt.Errorf("%w: unexpected AuthenticationSASLFinal", pgerr.ErrProtocolViolation))
				}

				if err := scramClient.HandleServerFinal(c.reader.Msg); err != nil {
					return c.fail(err)
				}
			default:
				detail := fmt.Sprintf("unsupported AuthenticationRequest type %d", authType)
				return c.fail(pgerr.WithDetail(pgerr.ErrUnsupportedAuth, detail))
			}
		case wire.BackendErrorResponse:
			fields, perr := parseErrorFields(c.reader)
			if perr != nil {
				return c.fail(perr)
			}

			c.mu.Lock()
			c.phase = PhaseFatal
			c.mu.Unlock()

			return &pgerr.AuthFailed{Fields: fields}
		case wire.BackendParameterStatus:
			if err := c.handleParameterStatus(); err != nil {
				return c.fail(err)
			}
		case wire.BackendBackendKeyData:
			if err := c.handleBackendKeyData(); err != nil {
				return c.fail(err)
			}
		case wire.BackendNoticeResponse:
			if err := c.handleNotice(); err != nil {
				return c.fail(err)
			}
		case wire.BackendReady:
			status, err := c.reader.GetByte()
			if err != nil {
				return c.fail(err)
			}

			c.setTxStatus(wire.TransactionStatus(status))
			return nil
		default:
			return c.fail(fmt.Errorf("%w: unexpected message %q during authentication", pgerr.ErrProtocolViolation, tag.String()))
		}
	}
}

func (c *Conn) sendPasswordMessage(password string) error {
	c.writer.Start(wire.FrontendPassword)
	c.writer.AddString(password)
	c.writer.AddNullTerminate()
	return c.writer.End()
}

// checkReady fails fast when the connection is not in a state that accepts
// a new query.
func (c *Conn) checkReady() error {
	c.mu.Lock()
	phase := c.phase
	c.mu.Unlock()

	if phase == PhaseFatal {
		return pgerr.ErrConnectionLost
	}

	if phase != PhaseReadyForQuery {
		err := fmt.Errorf("%w: connection not ready for query (phase %s)", pgerr.ErrProtocolViolation, phase)
		return pgerr.WithHint(err, "wait for Connect or the previous query to reach ReadyForQuery before issuing another query")
	}

	return nil
}

// fail transitions the connection to Fatal and wraps err as the
// ConnectionLost error observed by the caller and any future operation. The
// caller's own file/line/function is attached via WithSource so a log
// consumer can see where in the state machine the failure was detected.
func (c *Conn) fail(err error) error {
	c.mu.Lock()
	c.phase = PhaseFatal
	c.mu.Unlock()

	wrapped := fmt.Errorf("%w: %w", pgerr.ErrConnectionLost, err)

	if pc, file, line, ok := runtime.Caller(1); ok {
		name := "unknown"
		if fn := runtime.FuncForPC(pc); fn != nil {
			name = fn.Name()
		}

		wrapped = pgerr.WithSource(wrapped, file, int32(line), name)
	}

	flat := pgerr.Flatten(wrapped)
	c.logger.Error("pgwire: connection failed",
		slog.String("message", flat.Message),
		slog.String("severity", string(flat.Severity)),
		slog.Any("err", wrapped),
	)

	return wrapped
}

func (c *Conn) setTxStatus(status wire.TransactionStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch status {
	case wire.TxIdle:
		c.txStatus = TxIdle
	case wire.TxInTransaction:
		c.txStatus = TxInTransaction
	case wire.TxInFailedTxBlock:
		c.txStatus = TxInFailedTransaction
	}
}

// BackendPID returns the server-assigned process ID reported in
// BackendKeyData, used for cancellation.
func (c *Conn) BackendPID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backendPID
}

// ParameterStatus returns the last reported value of a server runtime
// parameter (e.g. "server_version"), or "" if never reported.
func (c *Conn) ParameterStatus(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parameters[name]
}

// Phase returns the connection's current protocol phase.
func (c *Conn) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// TxStatus returns the connection's transaction status as of the last
// ReadyForQuery.
func (c *Conn) TxStatus() TxStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txStatus
}

// Fatal reports whether the connection has transitioned to the terminal
// Fatal phase; it satisfies pool.Connection.
func (c *Conn) Fatal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == PhaseFatal
}

// Idle reports whether the connection's transaction status is Idle; it
// satisfies pool.Connection.
func (c *Conn) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txStatus == TxIdle
}

// Validate runs query as a simple query, discarding its result, to confirm
// the connection is still usable before the pool hands it out again. It
// satisfies pool.Connection.
func (c *Conn) Validate(ctx context.Context, query string) error {
	_, err := c.SimpleQuery(ctx, query)
	return err
}

// Cancel opens a fresh transport via dial, sends CancelRequest carrying
// this connection's backend PID and secret key, and closes the auxiliary
// transport. The primary connection is unaffected directly; it will
// observe cancellation via an ErrorResponse at its next synchronization
// point.
func (c *Conn) Cancel(ctx context.Context, dial func(ctx context.Context) (wire.Transport, error), ioTimeout time.Duration) error {
	c.mu.Lock()
	pid, secret := c.backendPID, c.secretKey
	c.mu.Unlock()

	transport, err := dial(ctx)
	if err != nil {
		return fmt.Errorf("pgwire: opening cancel transport: %w", err)
	}
	defer transport.Close()

	w := wire.NewWriter(c.logger, transport, ioTimeout)
	w.StartUntyped()
	w.AddInt32(int32(wire.VersionCancel))
	w.AddInt32(int32(pid))
	w.AddInt32(int32(secret))

	return w.End()
}

// Close sends a best-effort Terminate message and closes the transport.
// Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	c.phase = PhaseTerminating
	c.mu.Unlock()

	c.writer.Start(wire.FrontendTerminate)
	if err := c.writer.End(); err != nil {
		c.logger.Warn("pgwire: error sending Terminate", slog.Any("err", err))
	}

	return c.transport.Close()
}
