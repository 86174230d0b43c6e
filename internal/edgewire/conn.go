package edgewire

import (
	"bufio"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
)

// eventOrError is one slot of the background read channel.
type eventOrError struct {
	event *Event
	err   error
}

// Conn wraps one accepted edge connection. A background readLoop goroutine
// decodes frames as they arrive and makes them available through Events,
// the same shape as the teacher's websocket session readLoop-to-channel
// pattern.
type Conn struct {
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	logger *slog.Logger
	id     string

	eventsCh  chan eventOrError
	closeOnce sync.Once
}

// NewConn wraps an accepted net.Conn and starts its background read loop.
// Each connection is assigned a short, random ID (distinct from any
// edge-protocol content) so its log lines can be correlated without
// resorting to the remote address, which may be shared across reconnects
// behind NAT.
func NewConn(conn net.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	id := "conn_" + uuid.New().String()[:12]
	c := &Conn{
		conn:     conn,
		r:        bufio.NewReader(conn),
		w:        bufio.NewWriter(conn),
		logger:   logger.With("conn_id", id),
		id:       id,
		eventsCh: make(chan eventOrError, 8),
	}
	go c.readLoop()
	return c
}

// ID returns the connection's short correlation ID.
func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) readLoop() {
	defer close(c.eventsCh)
	for {
		ev, err := ReadEvent(c.r)
		if err != nil {
			c.eventsCh <- eventOrError{err: err}
			return
		}
		c.logger.Debug("edgewire: received event", "type", ev.Type, "payload_bytes", len(ev.Payload))
		c.eventsCh <- eventOrError{event: ev}
	}
}

// Events returns an iterator over the connection's decoded events. It ends
// (without yielding a second value) once the peer closes the connection or
// a framing error occurs, which is surfaced as the error half of the pair.
func (c *Conn) Events() iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		for pair := range c.eventsCh {
			if !yield(pair.event, pair.err) {
				return
			}
			if pair.err != nil {
				return
			}
		}
	}
}

// WriteAudioStart sends an audio-start event to the peer.
func (c *Conn) WriteAudioStart(rateHz int) error {
	if err := WriteAudioStart(c.w, rateHz); err != nil {
		return fmt.Errorf("edgewire: conn: %w", err)
	}
	return nil
}

// WriteAudioChunk sends an audio-chunk event carrying pcm16 to the peer.
func (c *Conn) WriteAudioChunk(rateHz int, pcm16 []byte) error {
	if err := WriteAudioChunk(c.w, rateHz, pcm16); err != nil {
		return fmt.Errorf("edgewire: conn: %w", err)
	}
	return nil
}

// WriteAudioStop sends an audio-stop event to the peer.
func (c *Conn) WriteAudioStop() error {
	if err := WriteAudioStop(c.w); err != nil {
		return fmt.Errorf("edgewire: conn: %w", err)
	}
	return nil
}

// Close closes the underlying connection. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr returns the peer's network address, for logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
