package api

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

var ErrNotConnected = errors.New("stream connection is not open")

type ListenerID uint64

// Listener 在读 goroutine 中被依次调用，同一连接上的回调不会并发
type Listener func(Frame)

// Connector 持有唯一的推送 WebSocket 连接，把解码后的消息分发给已注册的 listener
// 不做自动重连：错误和关闭只记录日志并通知 onClose
type Connector struct {
	wsURL  string
	dialer *websocket.Dialer
	logger *zap.Logger

	writeMu sync.Mutex // gorilla 只允许一个并发写

	mu        sync.RWMutex
	conn      *websocket.Conn
	open      bool
	closing   bool
	listeners map[ListenerID]Listener
	nextID    ListenerID
	onClose   func(err error)
}

func NewConnector(wsURL string, logger *zap.Logger) *Connector {
	return &Connector{
		wsURL:     wsURL,
		dialer:    websocket.DefaultDialer,
		logger:    logger,
		listeners: make(map[ListenerID]Listener),
	}
}

// OnClose 设置连接断开时的回调，需在 Connect 之前调用
func (c *Connector) OnClose(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

// Connect 建立连接并启动读循环
func (c *Connector) Connect(ctx context.Context) error {
	c.logger.Info("Opening stream connection", zap.String("URL", c.wsURL))

	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.wsURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.open = true
	c.closing = false
	c.mu.Unlock()

	c.logger.Info("Stream connection opened")

	go c.readLoop(conn)
	return nil
}

// IsOpen 对应 readyState === OPEN
func (c *Connector) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// Send 以 JSON 发送请求，连接未打开时返回 ErrNotConnected
func (c *Connector) Send(req Request) error {
	c.mu.RLock()
	conn, open := c.conn, c.open
	c.mu.RUnlock()
	if !open {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send %s: %w", req.Method, err)
	}
	return nil
}

func (c *Connector) AddListener(l Listener) ListenerID {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	c.listeners[c.nextID] = l
	return c.nextID
}

// RemoveListener 之后该 listener 不会再收到任何消息
func (c *Connector) RemoveListener(id ListenerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, id)
}

// Close 主动关闭连接，可重复调用
func (c *Connector) Close() error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil || c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.open = false
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()

	return conn.Close()
}

// readLoop 持续读取消息并分发，读错误即视为连接关闭
func (c *Connector) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(err)
			return
		}

		frame, err := DecodeFrame(message)
		if err != nil {
			// 格式错误的消息直接丢弃
			continue
		}

		c.dispatch(frame)
	}
}

func (c *Connector) dispatch(frame Frame) {
	c.mu.RLock()
	ids := slices.Sorted(maps.Keys(c.listeners))
	c.mu.RUnlock()

	for _, id := range ids {
		c.mu.RLock()
		l, ok := c.listeners[id]
		c.mu.RUnlock()
		if ok {
			l(frame)
		}
	}
}

func (c *Connector) handleClose(err error) {
	c.mu.Lock()
	intentional := c.closing
	c.open = false
	onClose := c.onClose
	c.mu.Unlock()

	if intentional || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Info("Stream connection closed")
	} else {
		c.logger.Error("Stream connection error", zap.Error(err))
	}

	if onClose != nil {
		onClose(err)
	}
}
