package pgwire

import (
	"context"
	"fmt"

	"github.com/corvidbase/pgwire/internal/wire"

	pgerr "github.com/corvidbase/pgwire/errors"
)

// ResultSet is one statement's outcome within a query: either a set of rows
// (Description non-nil), a bare command tag (INSERT/UPDATE/... with no
// rows), or a per-statement ServerError that does not abort the rest of the
// query.
type ResultSet struct {
	Description *RowDescription
	Rows        []*Row
	CommandTag  string
	Suspended   bool
	Err         error
}

// SimpleQuery sends sql as a Query message and collects every result set it
// produces, in order, up to the terminating ReadyForQuery. A statement-level
// ErrorResponse is recorded on that statement's ResultSet rather than
// aborting the remaining statements or the connection.
func (c *Conn) SimpleQuery(ctx context.Context, sql string) ([]*ResultSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.checkReady(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.phase = PhaseSimpleQuery
	c.mu.Unlock()

	c.writer.Start(wire.FrontendSimpleQuery)
	c.writer.AddString(sql)
	c.writer.AddNullTerminate()

	if err := c.writer.End(); err != nil {
		return nil, c.fail(err)
	}

	var results []*ResultSet
	var current *ResultSet

	for {
		tag, _, err := c.reader.ReadTypedMsg()
		if err != nil {
			return nil, c.fail(err)
		}

		switch tag {
		case wire.BackendRowDescription:
			desc, err := parseRowDescription(c.reader)
			if err != nil {
				return nil, c.fail(err)
			}

			current = &ResultSet{Description: desc}
		case wire.BackendDataRow:
			if current == nil {
				return nil, c.fail(fmt.Errorf("%w: DataRow without RowDescription", pgerr.ErrProtocolViolation))
			}

			row, err := parseDataRow(c.reader, current.Description)
			if err != nil {
				return nil, c.fail(err)
			}

			current.Rows = append(current.Rows, row)
		case wire.BackendCommandComplete:
			tagStr, err := c.reader.GetString()
			if err != nil {
				return nil, c.fail(err)
			}

			if current == nil {
				current = &ResultSet{}
			}

			current.CommandTag = tagStr
			results = append(results, current)
			current = nil
		case wire.BackendEmptyQuery:
			results = append(results, &ResultSet{})
			current = nil
		case wire.BackendErrorResponse:
			fields, perr := parseErrorFields(c.reader)
			if perr != nil {
				return nil, c.fail(perr)
			}

			if current == nil {
				current = &ResultSet{}
			}

			current.Err = &pgerr.ServerError{Fields: fields}
			results = append(results, current)
			current = nil
		case wire.BackendCopyInResponse, wire.BackendCopyOutResponse, wire.BackendCopyData, wire.BackendCopyDone:
			// COPY payload semantics are out of scope; frames are consumed
			// and discarded so the message stream stays in sync.
		case wire.BackendNoticeResponse:
			if err := c.handleNotice(); err != nil {
				return nil, c.fail(err)
			}
		case wire.BackendNotificationResponse:
			if err := c.handleNotification(); err != nil {
				return nil, c.fail(err)
			}
		case wire.BackendParameterStatus:
			if err := c.handleParameterStatus(); err != nil {
				return nil, c.fail(err)
			}
		case wire.BackendBackendKeyData:
			if err := c.handleBackendKeyData(); err != nil {
				return nil, c.fail(err)
			}
		case wire.BackendReady:
			status, err := c.reader.GetByte()
			if err != nil {
				return nil, c.fail(err)
			}

			c.setTxStatus(wire.TransactionStatus(status))

			c.mu.Lock()
			c.phase = PhaseReadyForQuery
			c.mu.Unlock()

			return results, nil
		default:
			return nil, c.fail(fmt.Errorf("%w: unexpected message %q during simple query", pgerr.ErrProtocolViolation, tag.String()))
		}
	}
}

// PreparedParameter is one value bound into an extended-query Bind message.
type PreparedParameter struct {
	Format FormatCode
	Value  []byte // nil means SQL NULL
}

// FormatCode re-exports wire.FormatCode for callers outside internal/wire.
type FormatCode = wire.FormatCode

const (
	FormatText   = wire.TextFormat
	FormatBinary = wire.BinaryFormat
)

// ExtendedQuery runs one statement through the unnamed-statement,
// unnamed-portal Parse/Bind/Describe/Execute/Sync sequence in a single
// round trip. paramOIDs may be left nil to let the backend infer types.
func (c *Conn) ExtendedQuery(ctx context.Context, sql string, paramOIDs []uint32, params []PreparedParameter, resultFormat FormatCode) (*ResultSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.checkReady(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.phase = PhaseExtendedQuery
	c.mu.Unlock()

	if err := c.sendParse(sql, paramOIDs); err != nil {
		return nil, c.fail(err)
	}

	if err := c.sendBind(params, resultFormat); err != nil {
		return nil, c.fail(err)
	}

	if err := c.sendDescribePortal(); err != nil {
		return nil, c.fail(err)
	}

	if err := c.sendExecute(); err != nil {
		return nil, c.fail(err)
	}

	if err := c.sendSync(); err != nil {
		return nil, c.fail(err)
	}

	return c.readExtendedQueryResult()
}

func (c *Conn) sendParse(sql string, paramOIDs []uint32) error {
	c.writer.Start(wire.FrontendParse)
	c.writer.AddString("")
	c.writer.AddNullTerminate()
	c.writer.AddString(sql)
	c.writer.AddNullTerminate()
	c.writer.AddInt16(int16(len(paramOIDs)))

	for _, o := range paramOIDs {
		c.writer.AddInt32(int32(o))
	}

	return c.writer.End()
}

func (c *Conn) sendBind(params []PreparedParameter, resultFormat FormatCode) error {
	c.writer.Start(wire.FrontendBind)
	c.writer.AddString("")
	c.writer.AddNullTerminate()
	c.writer.AddString("")
	c.writer.AddNullTerminate()

	c.writer.AddInt16(int16(len(params)))
	for _, p := range params {
		c.writer.AddInt16(int16(p.Format))
	}

	c.writer.AddInt16(int16(len(params)))
	for _, p := range params {
		c.writer.AddByteString(p.Value)
	}

	c.writer.AddInt16(1)
	c.writer.AddInt16(int16(resultFormat))

	return c.writer.End()
}

func (c *Conn) sendDescribePortal() error {
	c.writer.Start(wire.FrontendDescribe)
	c.writer.AddByte('P')
	c.writer.AddString("")
	c.writer.AddNullTerminate()

	return c.writer.End()
}

func (c *Conn) sendExecute() error {
	c.writer.Start(wire.FrontendExecute)
	c.writer.AddString("")
	c.writer.AddNullTerminate()
	c.writer.AddInt32(0)

	return c.writer.End()
}

func (c *Conn) sendSync() error {
	c.writer.Start(wire.FrontendSync)
	return c.writer.End()
}

// readExtendedQueryResult consumes backend messages following a
// Parse/Bind/Describe/Execute/Sync sequence. Per the protocol, an error
// mid-pipeline causes the backend to discard messages until Sync; since
// Sync has already been sent, this loop always terminates at the matching
// ReadyForQuery.
func (c *Conn) readExtendedQueryResult() (*ResultSet, error) {
	result := &ResultSet{}

	for {
		tag, _, err := c.reader.ReadTypedMsg()
		if err != nil {
			return nil, c.fail(err)
		}

		switch tag {
		case wire.BackendParseComplete, wire.BackendBindComplete, wire.BackendNoData:
			// no caller-visible effect
		case wire.BackendParameterDescription:
			if _, err := parseParameterDescription(c.reader); err != nil {
				return nil, c.fail(err)
			}
		case wire.BackendRowDescription:
			desc, err := parseRowDescription(c.reader)
			if err != nil {
				return nil, c.fail(err)
			}

			result.Description = desc
		case wire.BackendDataRow:
			row, err := parseDataRow(c.reader, result.Description)
			if err != nil {
				return nil, c.fail(err)
			}

			result.Rows = append(result.Rows, row)
		case wire.BackendCommandComplete:
			tagStr, err := c.reader.GetString()
			if err != nil {
				return nil, c.fail(err)
			}

			result.CommandTag = tagStr
		case wire.BackendPortalSuspended:
			result.Suspended = true
		case wire.BackendErrorResponse:
			fields, perr := parseErrorFields(c.reader)
			if perr != nil {
				return nil, c.fail(perr)
			}

			result.Err = &pgerr.ServerError{Fields: fields}
		case wire.BackendNoticeResponse:
			if err := c.handleNotice(); err != nil {
				return nil, c.fail(err)
			}
		case wire.BackendNotificationResponse:
			if err := c.handleNotification(); err != nil {
				return nil, c.fail(err)
			}
		case wire.BackendParameterStatus:
			if err := c.handleParameterStatus(); err != nil {
				return nil, c.fail(err)
			}
		case wire.BackendBackendKeyData:
			if err := c.handleBackendKeyData(); err != nil {
				return nil, c.fail(err)
			}
		case wire.BackendReady:
			status, err := c.reader.GetByte()
			if err != nil {
				return nil, c.fail(err)
			}

			c.setTxStatus(wire.TransactionStatus(status))

			c.mu.Lock()
			c.phase = PhaseReadyForQuery
			c.mu.Unlock()

			return result, nil
		default:
			return nil, c.fail(fmt.Errorf("%w: unexpected message %q during extended query", pgerr.ErrProtocolViolation, tag.String()))
		}
	}
}
