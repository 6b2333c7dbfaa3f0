package wire

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"time"
)

// Writer assembles a single frontend message into an internal buffer and
// emits it atomically via the transport's WriteFull (which itself retries
// partial writes).
type Writer struct {
	logger    *slog.Logger
	transport Transport
	timeout   time.Duration
	frame     bytes.Buffer
	putbuf    [64]byte
	err       error
	untyped   bool
}

// NewWriter constructs a Writer over the given transport.
func NewWriter(logger *slog.Logger, transport Transport, timeout time.Duration) *Writer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{logger: logger, transport: transport, timeout: timeout}
}

// Start resets the frame buffer and begins a new tagged message; a
// reserved 4-byte length field follows the tag and is patched by End.
func (writer *Writer) Start(t FrontendMessage) {
	writer.Reset()
	writer.putbuf[0] = byte(t)
	writer.frame.Write(writer.putbuf[:5])
}

// StartUntyped begins a message with no leading tag byte (the StartupMessage
// and SSLRequest, the only untyped frontend messages).
func (writer *Writer) StartUntyped() {
	writer.Reset()
	writer.untyped = true
	writer.frame.Write(writer.putbuf[:4])
}

func (writer *Writer) AddByte(b byte) {
	if writer.err != nil {
		return
	}

	writer.err = writer.frame.WriteByte(b)
}

func (writer *Writer) AddInt16(i int16) {
	if writer.err != nil {
		return
	}

	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(i))
	_, writer.err = writer.frame.Write(b[:])
}

func (writer *Writer) AddInt32(i int32) {
	if writer.err != nil {
		return
	}

	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(i))
	_, writer.err = writer.frame.Write(b[:])
}

func (writer *Writer) AddInt64(i int64) {
	if writer.err != nil {
		return
	}

	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(i))
	_, writer.err = writer.frame.Write(b[:])
}

func (writer *Writer) AddBytes(b []byte) {
	if writer.err != nil {
		return
	}

	_, writer.err = writer.frame.Write(b)
}

// AddByteString writes an int32-length-prefixed byte string; -1 marks null.
func (writer *Writer) AddByteString(b []byte) {
	if b == nil {
		writer.AddInt32(-1)
		return
	}

	writer.AddInt32(int32(len(b)))
	writer.AddBytes(b)
}

func (writer *Writer) AddString(s string) {
	if writer.err != nil {
		return
	}

	_, writer.err = writer.frame.WriteString(s)
}

func (writer *Writer) AddNullTerminate() {
	if writer.err != nil {
		return
	}

	writer.err = writer.frame.WriteByte(0)
}

func (writer *Writer) Error() error { return writer.err }

func (writer *Writer) Bytes() []byte { return writer.frame.Bytes() }

func (writer *Writer) Reset() {
	writer.frame.Reset()
	writer.err = nil
	writer.untyped = false
}

// End patches the frame's length field and flushes it through the
// transport as a single WriteFull call.
func (writer *Writer) End() error {
	tagged := !writer.untyped
	defer writer.Reset()
	if writer.err != nil {
		return writer.err
	}

	buf := writer.frame.Bytes()

	if tagged {
		length := uint32(len(buf) - 1)
		binary.BigEndian.PutUint32(buf[1:5], length)
		writer.logger.Debug("-> write message", slog.String("type", FrontendMessage(buf[0]).String()))
	} else {
		length := uint32(len(buf))
		binary.BigEndian.PutUint32(buf[0:4], length)
	}

	return writer.transport.WriteFull(buf, writer.timeout)
}
