package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrSubscriberClosed is the cause of a delivery to a subscriber whose
// connection is already gone.
var ErrSubscriberClosed = errors.New("subscriber closed")

// DeliveryError is the outcome of a failed push to one subscriber.
type DeliveryError struct {
	SubscriberID string
	Err          error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.SubscriberID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Subscriber is one connected receiver of snapshots.
type Subscriber interface {
	ID() string
	// Deliver pushes one encoded snapshot. A non-nil error means the
	// subscriber is dead and must be dropped.
	Deliver(ctx context.Context, payload []byte) error
	Close() error
}

const maxInboundMessage = 4096

// wsSubscriber delivers snapshots over a websocket. The broadcaster is the
// only writer; the read pump only watches for disconnect.
type wsSubscriber struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	gone      chan struct{}
}

func newWSSubscriber(conn *websocket.Conn, writeTimeout time.Duration) *wsSubscriber {
	conn.SetReadLimit(maxInboundMessage)
	return &wsSubscriber{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: writeTimeout,
		gone:         make(chan struct{}),
	}
}

func (s *wsSubscriber) ID() string {
	return s.id
}

func (s *wsSubscriber) Deliver(ctx context.Context, payload []byte) error {
	if s.closed.Load() {
		return &DeliveryError{SubscriberID: s.id, Err: ErrSubscriberClosed}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return &DeliveryError{SubscriberID: s.id, Err: err}
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return &DeliveryError{SubscriberID: s.id, Err: err}
	}
	return nil
}

// readPump discards client frames until the connection fails, then marks
// the subscriber gone.
func (s *wsSubscriber) readPump() {
	defer close(s.gone)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Gone is closed once the client has disconnected.
func (s *wsSubscriber) Gone() <-chan struct{} {
	return s.gone
}

func (s *wsSubscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
