package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 50 * time.Second
)

// client adapts one gorilla connection to chat.Conn. The write pump is the
// only writer of data frames.
type client struct {
	id      string
	rawConn *websocket.Conn
	hub     *Hub

	send      chan []byte
	done      chan struct{}
	open      atomic.Bool
	closeOnce sync.Once
}

func newClient(id string, rawConn *websocket.Conn, hub *Hub, sendBuffer int, maxFrameBytes int64) *client {
	rawConn.SetReadLimit(maxFrameBytes)
	c := &client{
		id:      id,
		rawConn: rawConn,
		hub:     hub,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
	}
	c.open.Store(true)
	return c
}

func (c *client) Send(frame []byte) bool {
	if !c.open.Load() {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false // queue full
	}
}

func (c *client) Open() bool { return c.open.Load() }

// Close stops the write pump, which then closes the socket.
func (c *client) Close() {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
	})
}

func (c *client) readPump() {
	defer func() {
		c.Close()
		c.hub.Leave(c.id)
	}()

	for {
		_, data, err := c.rawConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				zap.L().Warn("ws.read", zap.String("session_id", c.id), zap.Error(err))
			} else {
				zap.L().Debug("ws.closed", zap.String("session_id", c.id), zap.Error(err))
			}
			return
		}
		if !c.hub.Receive(c.id, data) {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.rawConn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				zap.L().Debug("ws.write", zap.String("session_id", c.id), zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				zap.L().Debug("ws.ping", zap.String("session_id", c.id), zap.Error(err))
				c.Close()
				return
			}
		case <-c.done:
			_ = c.write(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *client) write(mt int, data []byte) error {
	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteMessage(mt, data)
}
