package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"liveclass/pkg/types"
)

const writeTimeout = 5 * time.Second

// Connection wraps a WebSocket connection behind a single writer goroutine
// so concurrent broadcasts and replies never race on the socket.
type Connection struct {
	id        string
	conn      *websocket.Conn
	writeCh   chan []byte
	userID    string
	classID   string
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.RWMutex
}

// NewConnection creates a connection wrapper and starts its writer.
func NewConnection(conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:      uuid.New().String(),
		conn:    conn,
		writeCh: make(chan []byte, 100),
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	defer func() {
		for len(c.writeCh) > 0 {
			<-c.writeCh
		}
		close(c.writeCh)
	}()

	for {
		select {
		case data, ok := <-c.writeCh:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// ID returns the connection identity used in the roster and the hub.
func (c *Connection) ID() string {
	return c.id
}

// WriteEnvelope queues an envelope for delivery. Times out rather than
// blocking the caller on a slow client.
func (c *Connection) WriteEnvelope(env *types.Envelope) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(env)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close shuts the connection down. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// SetIdentity records who is on the other end of the connection.
func (c *Connection) SetIdentity(userID, classID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.classID = classID
}

// UserID returns the authenticated user identity.
func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// ClassID returns the class channel this connection belongs to.
func (c *Connection) ClassID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.classID
}
