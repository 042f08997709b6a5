package control

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/logging"
)

// Client 是一个已连接的消息端口。
type Client interface {
	Send(message []byte) bool
	Close()
}

// Broadcaster 向所有已连接客户端推送通知。
type Broadcaster interface {
	Broadcast(ctx context.Context, message any) error
}

// Hub 维护已连接客户端并向其广播。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]Client
	logger  *logrus.Logger
}

// NewHub 构造空 Hub。
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Hub{clients: make(map[string]Client), logger: logger}
}

// Register 登记客户端并返回其 ID。
func (h *Hub) Register(client Client) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.clients[id] = client
	h.mu.Unlock()
	return id
}

// Unregister 移除客户端。
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// Count 返回当前连接数。
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast 将 message 编码为 JSON 后发给所有客户端。
// 写失败的客户端不在这里移除，由它自己的读循环负责注销。
func (h *Hub) Broadcast(ctx context.Context, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	failed := 0
	for _, client := range h.clients {
		if !client.Send(payload) {
			failed++
		}
	}
	h.logger.WithFields(logrus.Fields{
		"action":  "broadcast",
		"clients": len(h.clients),
		"failed":  failed,
	}).Debug("broadcast_sent")
	return nil
}

// Subscribe 注册一个基于带缓冲 channel 的进程内客户端，缓冲满时丢弃消息。
// 返回的函数用于取消订阅。
func (h *Hub) Subscribe(buffer int) (<-chan []byte, func()) {
	client := &chanClient{ch: make(chan []byte, buffer)}
	id := h.Register(client)
	return client.ch, func() {
		h.Unregister(id)
		client.Close()
	}
}

type chanClient struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func (c *chanClient) Send(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.ch <- message:
		return true
	default:
		return false
	}
}

func (c *chanClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
