package control

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/logging"
)

// WebSocketPath 是控制通道在管理端口上的挂载路径。
const WebSocketPath = "/-/control/ws"

const (
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 4096
)

// wsClient 把 websocket 连接包装成 Client；gorilla 连接只允许一个并发写者。
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) Send(message []byte) bool {
	if c == nil || c.conn == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, message) == nil
}

func (c *wsClient) Close() {
	if c != nil && c.conn != nil {
		_ = c.conn.Close()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 管理端口仅监听本机，允许任意来源升级
		return true
	},
}

// WebSocketHandler 将每个连接视作一个 message port：命令的回复写回同一连接，
// 广播通知经 Hub 推送到所有连接。
type WebSocketHandler struct {
	channel *Channel
	hub     *Hub
	logger  *logrus.Logger
}

// NewWebSocketHandler 构造 handler。
func NewWebSocketHandler(channel *Channel, hub *Hub, logger *logrus.Logger) *WebSocketHandler {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &WebSocketHandler{channel: channel, hub: hub, logger: logger}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).WithField("action", "control_upgrade").Warn("websocket_upgrade_failed")
		return
	}

	client := &wsClient{conn: conn}
	id := h.hub.Register(client)
	h.logger.WithFields(logrus.Fields{"action": "control_connect", "client": id}).Debug("control_client_connected")

	pingTicker := time.NewTicker(pingInterval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()
	defer func() {
		close(done)
		pingTicker.Stop()
		h.hub.Unregister(id)
		client.Close()
	}()

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// 命令处理脱离请求上下文，连接断开不会打断正在进行的清理
	ctx := context.WithoutCancel(r.Context())
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if reply, ok := h.channel.HandleRaw(ctx, raw); ok {
			client.Send(reply)
		}
	}
}

// NewAdminHandler 返回管理端口使用的 http.Handler：WebSocket 消息端口与 POST 命令入口。
// 两者都不挂在拦截端口上。
func NewAdminHandler(channel *Channel, hub *Hub, logger *logrus.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(WebSocketPath, NewWebSocketHandler(channel, hub, logger))
	mux.Handle(CommandPath, NewCommandHandler(channel, logger))
	return mux
}
