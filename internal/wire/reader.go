package wire

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"time"
	"unsafe"
)

// DefaultBufferSize is the read buffer size used when none is configured.
const DefaultBufferSize = 1 << 20 // 1 MiB

// Reader frames backend messages off a Transport. It never buffers more
// than one message beyond the current read target, but grows Msg's backing
// array as needed for larger frames.
type Reader struct {
	logger         *slog.Logger
	transport      Transport
	timeout        time.Duration
	Msg            []byte
	MaxMessageSize int
	header         [4]byte
}

// NewReader constructs a Reader over the given transport. bufferSize bounds
// the largest single frame the reader will accept; a non-positive value
// selects DefaultBufferSize.
func NewReader(logger *slog.Logger, transport Transport, bufferSize int, timeout time.Duration) *Reader {
	if logger == nil {
		logger = slog.Default()
	}

	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Reader{
		logger:         logger,
		transport:      transport,
		timeout:        timeout,
		MaxMessageSize: bufferSize,
	}
}

// reset sizes reader.Msg to exactly size, reusing spare backing capacity
// when available.
func (reader *Reader) reset(size int) {
	if cap(reader.Msg) >= size {
		reader.Msg = reader.Msg[:size]
		return
	}

	allocSize := size
	if allocSize < 4096 {
		allocSize = 4096
	}

	reader.Msg = make([]byte, size, allocSize)
}

// ReadType reads a single backend message tag byte.
func (reader *Reader) ReadType() (BackendMessage, error) {
	var b [1]byte
	if err := reader.transport.ReadFull(b[:], reader.timeout); err != nil {
		return 0, err
	}

	return BackendMessage(b[0]), nil
}

// ReadTypedMsg reads a tagged message, returning the tag and the message
// length excluding the tag byte (the 4-byte length field plus the payload).
// The payload is left in reader.Msg.
func (reader *Reader) ReadTypedMsg() (BackendMessage, int, error) {
	typed, err := reader.ReadType()
	if err != nil {
		return typed, 0, err
	}

	n, err := reader.ReadUntypedMsg()
	if err != nil {
		return 0, 0, err
	}

	reader.logger.Debug("<- read message", slog.String("type", typed.String()), slog.Int("length", n))
	return typed, n, nil
}

// ReadMsgSize reads the 4-byte big-endian length prefix (self-inclusive) of
// the next message and returns the remaining payload length.
func (reader *Reader) ReadMsgSize() (int, error) {
	if err := reader.transport.ReadFull(reader.header[:], reader.timeout); err != nil {
		return 0, err
	}

	size := int(binary.BigEndian.Uint32(reader.header[:]))
	size -= 4 // the length field includes itself

	return size, nil
}

// ReadUntypedMsg reads a length-prefixed payload with no preceding tag byte;
// used only for the very first startup-phase message.
func (reader *Reader) ReadUntypedMsg() (int, error) {
	size, err := reader.ReadMsgSize()
	if err != nil {
		return 0, err
	}

	if size > reader.MaxMessageSize || size < 0 {
		return size, NewMessageSizeExceeded(reader.MaxMessageSize, size)
	}

	reader.reset(size)
	if err := reader.transport.ReadFull(reader.Msg, reader.timeout); err != nil {
		return 0, err
	}

	return len(reader.header) + size, nil
}

// Slurp discards size remaining bytes, used to drain a frame whose declared
// length exceeded the configured maximum.
func (reader *Reader) Slurp(size int) error {
	remaining := size
	for remaining > 0 {
		reading := remaining
		if reading > reader.MaxMessageSize {
			reading = reader.MaxMessageSize
		}

		reader.reset(reading)
		if err := reader.transport.ReadFull(reader.Msg, reader.timeout); err != nil {
			return err
		}

		remaining -= reading
	}

	return nil
}

// GetString reads a null-terminated string from the front of reader.Msg.
func (reader *Reader) GetString() (string, error) {
	pos := bytes.IndexByte(reader.Msg, 0)
	if pos == -1 {
		return "", NewMissingNulTerminator()
	}

	// Avoids a copy; safe because reader.Msg's backing array is never
	// reused while the returned string is alive.
	s := reader.Msg[:pos]
	reader.Msg = reader.Msg[pos+1:]
	return *((*string)(unsafe.Pointer(&s))), nil
}

// GetBytes returns the next n bytes, or nil for n == -1 (the wire
// null-length marker).
func (reader *Reader) GetBytes(n int) ([]byte, error) {
	if n == -1 {
		return nil, nil
	}

	if len(reader.Msg) < n {
		return nil, NewInsufficientData(len(reader.Msg))
	}

	v := reader.Msg[:n]
	reader.Msg = reader.Msg[n:]
	return v, nil
}

// GetByte reads a single byte.
func (reader *Reader) GetByte() (byte, error) {
	if len(reader.Msg) < 1 {
		return 0, NewInsufficientData(len(reader.Msg))
	}

	b := reader.Msg[0]
	reader.Msg = reader.Msg[1:]
	return b, nil
}

// GetInt16 reads a big-endian int16.
func (reader *Reader) GetInt16() (int16, error) {
	if len(reader.Msg) < 2 {
		return 0, NewInsufficientData(len(reader.Msg))
	}

	v := int16(binary.BigEndian.Uint16(reader.Msg[:2]))
	reader.Msg = reader.Msg[2:]
	return v, nil
}

// GetUint16 reads a big-endian uint16.
func (reader *Reader) GetUint16() (uint16, error) {
	if len(reader.Msg) < 2 {
		return 0, NewInsufficientData(len(reader.Msg))
	}

	v := binary.BigEndian.Uint16(reader.Msg[:2])
	reader.Msg = reader.Msg[2:]
	return v, nil
}

// GetInt32 reads a big-endian int32.
func (reader *Reader) GetInt32() (int32, error) {
	if len(reader.Msg) < 4 {
		return 0, NewInsufficientData(len(reader.Msg))
	}

	v := int32(binary.BigEndian.Uint32(reader.Msg[:4]))
	reader.Msg = reader.Msg[4:]
	return v, nil
}

// GetUint32 reads a big-endian uint32.
func (reader *Reader) GetUint32() (uint32, error) {
	if len(reader.Msg) < 4 {
		return 0, NewInsufficientData(len(reader.Msg))
	}

	v := binary.BigEndian.Uint32(reader.Msg[:4])
	reader.Msg = reader.Msg[4:]
	return v, nil
}

// GetInt64 reads a big-endian int64.
func (reader *Reader) GetInt64() (int64, error) {
	if len(reader.Msg) < 8 {
		return 0, NewInsufficientData(len(reader.Msg))
	}

	v := int64(binary.BigEndian.Uint64(reader.Msg[:8]))
	reader.Msg = reader.Msg[8:]
	return v, nil
}

// Remaining returns the number of unread bytes left in the current message.
func (reader *Reader) Remaining() int {
	return len(reader.Msg)
}
