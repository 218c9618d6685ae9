package handler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
)

type fakeWSConn struct {
	mu         sync.Mutex
	pong       func(string) error
	deadlines  []time.Time
	writes     []int
	closed     bool
	handlerSet chan struct{}
	readErr    chan error
}

func newFakeWSConn() *fakeWSConn {
	return &fakeWSConn{
		handlerSet: make(chan struct{}),
		readErr:    make(chan error),
	}
}

func (c *fakeWSConn) ReadMessage() (int, []byte, error) {
	return 0, nil, <-c.readErr
}

func (c *fakeWSConn) WriteMessage(messageType int, _ []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, messageType)
	return nil
}

func (c *fakeWSConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines = append(c.deadlines, t)
	return nil
}

func (c *fakeWSConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeWSConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	c.pong = h
	c.mu.Unlock()
	close(c.handlerSet)
}

func (c *fakeWSConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeWSConn) firePong() error {
	c.mu.Lock()
	h := c.pong
	c.mu.Unlock()
	return h("")
}

func (c *fakeWSConn) deadlineCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deadlines)
}

func (c *fakeWSConn) writeCount(messageType int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.writes {
		if w == messageType {
			n++
		}
	}
	return n
}

func TestReadPumpExtendsDeadlineOnPong(t *testing.T) {
	conn := newFakeWSConn()

	done := make(chan struct{})
	go func() {
		readPump(conn, time.Minute)
		close(done)
	}()

	select {
	case <-conn.handlerSet:
	case <-time.After(time.Second):
		t.Fatal("pong handler never installed")
	}

	// Each pong pushes the deadline forward; an idle connection that answers
	// pings is never cut off.
	for i := 0; i < 3; i++ {
		if err := conn.firePong(); err != nil {
			t.Fatalf("pong handler: %v", err)
		}
	}
	if got := conn.deadlineCount(); got != 4 {
		t.Fatalf("deadline set %d times, want initial + 3 pongs", got)
	}
	conn.mu.Lock()
	first, last := conn.deadlines[0], conn.deadlines[3]
	conn.mu.Unlock()
	if last.Before(first) {
		t.Fatalf("deadline moved backwards: %v -> %v", first, last)
	}

	conn.readErr <- errors.New("connection closed")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("readPump did not exit on read error")
	}
}

func TestWritePumpPingsIdleConnection(t *testing.T) {
	conn := newFakeWSConn()
	send := make(chan []byte)

	go writePump(conn, send, 5*time.Millisecond)

	deadline := time.After(time.Second)
	for conn.writeCount(websocket.PingMessage) < 2 {
		select {
		case <-deadline:
			t.Fatal("no pings sent on idle connection")
		case <-time.After(time.Millisecond):
		}
	}

	close(send)
	deadline = time.After(time.Second)
	for conn.writeCount(websocket.CloseMessage) == 0 {
		select {
		case <-deadline:
			t.Fatal("no close frame after send channel closed")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestWritePumpDeliversMessages(t *testing.T) {
	conn := newFakeWSConn()
	send := make(chan []byte, 1)
	send <- []byte("hello")

	go writePump(conn, send, time.Minute)

	deadline := time.After(time.Second)
	for conn.writeCount(websocket.TextMessage) == 0 {
		select {
		case <-deadline:
			t.Fatal("queued message never written")
		case <-time.After(time.Millisecond):
		}
	}
	close(send)
}
