package nodelink

import (
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orris-inc/soundmesh/internal/shared/errors"
	"github.com/orris-inc/soundmesh/internal/shared/goroutine"
)

// connection owns one websocket. All writes of data frames go through
// writePump; readPump is the only reader, so inbound frames are handled in
// arrival order.
type connection struct {
	link *Link
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func newConnection(l *Link, ws *websocket.Conn) *connection {
	return &connection{
		link: l,
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (c *connection) start() {
	name := c.link.node.Name()
	goroutine.SafeGo(c.link.log, "nodelink-write-"+name, c.writePump)
	goroutine.SafeGo(c.link.log, "nodelink-read-"+name, c.readPump)
}

// enqueue hands a frame to the write pump without blocking.
func (c *connection) enqueue(data []byte) error {
	select {
	case <-c.done:
		return errors.NewNotConnectedError("connection closed", c.link.node.Name())
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("send channel full")
	}
}

func (c *connection) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			code, reason := closeStatus(err)
			c.shutdown()
			c.link.handleClose(c, code, reason)
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.link.handleMessage(message)
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.link.emitError(fmt.Errorf("write message: %w", err))
				_ = c.ws.Close()
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.ws.Close()
				return
			}
		}
	}
}

// close sends a close frame and waits for the node to echo it. The socket is
// torn down after writeWait regardless.
func (c *connection) close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	if err != nil {
		_ = c.ws.Close()
		return fmt.Errorf("write close frame: %w", err)
	}

	time.AfterFunc(writeWait, func() {
		_ = c.ws.Close()
	})
	return nil
}

func (c *connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// closeStatus extracts the close code from a read error. Anything other than
// a close frame counts as an abnormal closure.
func closeStatus(err error) (int, string) {
	var ce *websocket.CloseError
	if stderrors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
