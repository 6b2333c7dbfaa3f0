package pgwire

import (
	"log/slog"

	pgerr "github.com/corvidbase/pgwire/errors"
)

// Notification is one asynchronous NotificationResponse delivered to a
// LISTEN subscriber.
type Notification struct {
	PID     uint32
	Channel string
	Payload string
}

// NoticeHandler receives NoticeResponse messages, the backend's
// non-fatal warnings delivered outside the query/result flow.
type NoticeHandler func(pgerr.Error)

// NotificationHandler receives a Notification delivered on a channel the
// connection is subscribed to via Listen.
type NotificationHandler func(Notification)

// defaultNoticeHandler logs notices at warning level when the caller has
// not installed one via WithNoticeHandler.
func defaultNoticeHandler(logger *slog.Logger) NoticeHandler {
	return func(fields pgerr.Error) {
		logger.Warn("server notice",
			slog.String("message", fields.Message),
			slog.String("severity", string(fields.Severity)),
			slog.String("detail", fields.Detail),
		)
	}
}

// Listen registers handler to receive NotificationResponse messages
// delivered for channel. A second call for the same channel replaces the
// previous handler.
func (c *Conn) Listen(channel string, handler NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.notificationHandlers == nil {
		c.notificationHandlers = make(map[string]NotificationHandler)
	}

	c.notificationHandlers[channel] = handler
}

// Unlisten removes any handler registered for channel. It does not send a
// LISTEN/UNLISTEN statement to the backend; callers issue `UNLISTEN` via
// SimpleQuery themselves and then call Unlisten to stop local dispatch.
func (c *Conn) Unlisten(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.notificationHandlers, channel)
}

// handleNotice reads a NoticeResponse body and dispatches it to the
// installed NoticeHandler.
func (c *Conn) handleNotice() error {
	fields, err := parseErrorFields(c.reader)
	if err != nil {
		return err
	}

	c.mu.Lock()
	handler := c.noticeHandler
	c.mu.Unlock()

	if handler != nil {
		handler(fields)
	}

	return nil
}

// handleNotification reads a NotificationResponse body and dispatches it to
// the handler registered for its channel, if any; otherwise logs and drops
// it.
func (c *Conn) handleNotification() error {
	pid, err := c.reader.GetUint32()
	if err != nil {
		return err
	}

	channel, err := c.reader.GetString()
	if err != nil {
		return err
	}

	payload, err := c.reader.GetString()
	if err != nil {
		return err
	}

	n := Notification{PID: pid, Channel: channel, Payload: payload}

	c.mu.Lock()
	handler, ok := c.notificationHandlers[channel]
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("notification received with no subscriber",
			slog.String("channel", channel),
			slog.Uint64("pid", uint64(pid)),
		)

		return nil
	}

	handler(n)

	return nil
}

// handleParameterStatus reads a ParameterStatus body and updates the
// connection's live parameter set.
func (c *Conn) handleParameterStatus() error {
	name, err := c.reader.GetString()
	if err != nil {
		return err
	}

	value, err := c.reader.GetString()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.parameters == nil {
		c.parameters = make(map[string]string)
	}

	c.parameters[name] = value
	c.mu.Unlock()

	return nil
}

// handleBackendKeyData reads a BackendKeyData body and stores the
// connection's cancellation key.
func (c *Conn) handleBackendKeyData() error {
	pid, err := c.reader.GetUint32()
	if err != nil {
		return err
	}

	secret, err := c.reader.GetUint32()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.backendPID = pid
	c.secretKey = secret
	c.mu.Unlock()

	return nil
}
