package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const waitTimeout = 2 * time.Second

// echoServer 把收到的每条消息原样写回
func echoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnector_SendBeforeConnect(t *testing.T) {
	c := NewConnector("ws://127.0.0.1:1", zap.NewNop())

	if err := c.Send(NewPingRequest()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if c.IsOpen() {
		t.Error("expected closed connector")
	}
	if err := c.Close(); err != nil {
		t.Errorf("close before connect should be a no-op, got %v", err)
	}
}

func TestConnector_DialFailure(t *testing.T) {
	c := NewConnector("ws://127.0.0.1:1", zap.NewNop())

	if err := c.Connect(context.Background()); err == nil {
		t.Error("expected dial error")
	}
}

func TestConnector_ListenersReceiveFrames(t *testing.T) {
	srv := echoServer(t)
	c := NewConnector(wsURL(srv), zap.NewNop())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	first := make(chan Frame, 4)
	second := make(chan Frame, 4)
	c.AddListener(func(f Frame) { first <- f })
	id := c.AddListener(func(f Frame) { second <- f })

	// 回显的请求带 id 且 method 非空，解码为 unknown
	if err := c.Send(NewSubscribeRequest("x")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	for _, ch := range []chan Frame{first, second} {
		select {
		case f := <-ch:
			if f.Kind != FrameUnknown {
				t.Errorf("expected unknown frame, got %s", f.Kind)
			}
		case <-time.After(waitTimeout):
			t.Fatal("listener did not receive frame")
		}
	}

	c.RemoveListener(id)
	if err := c.Send(NewPingRequest()); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	select {
	case <-first:
	case <-time.After(waitTimeout):
		t.Fatal("remaining listener did not receive frame")
	}
	select {
	case <-second:
		t.Error("removed listener received a frame")
	default:
	}
}

func TestConnector_CloseNotifies(t *testing.T) {
	srv := echoServer(t)
	c := NewConnector(wsURL(srv), zap.NewNop())

	closed := make(chan error, 1)
	c.OnClose(func(err error) { closed <- err })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if !c.IsOpen() {
		t.Fatal("expected open connector")
	}

	if err := c.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	select {
	case <-closed:
	case <-time.After(waitTimeout):
		t.Fatal("onClose was not called")
	}
	if c.IsOpen() {
		t.Error("expected closed connector")
	}
	if err := c.Send(NewPingRequest()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after close, got %v", err)
	}
}
