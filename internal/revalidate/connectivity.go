package revalidate

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/logging"
	"github.com/shellcache/shellcache/internal/strategy"
)

// Connectivity 根据回源结果推断在线状态：网络错误视为离线，之后第一次成功回源
// 视为重新联网并触发回调。
type Connectivity struct {
	mu          sync.Mutex
	online      bool
	changedAt   time.Time
	onReconnect func()
	logger      *logrus.Logger
}

// NewConnectivity 构造初始为在线的跟踪器。
func NewConnectivity(logger *logrus.Logger) *Connectivity {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Connectivity{online: true, changedAt: time.Now(), logger: logger}
}

// OnReconnect 注册重新联网回调，回调在 ObserveFetch 的调用方 goroutine 之外执行。
func (c *Connectivity) OnReconnect(fn func()) {
	c.mu.Lock()
	c.onReconnect = fn
	c.mu.Unlock()
}

// ObserveFetch 实现 strategy.NetworkObserver。
func (c *Connectivity) ObserveFetch(err error) {
	if err != nil && !strategy.IsNetworkError(err) {
		return
	}
	online := err == nil

	c.mu.Lock()
	if c.online == online {
		c.mu.Unlock()
		return
	}
	c.online = online
	c.changedAt = time.Now()
	callback := c.onReconnect
	c.mu.Unlock()

	if !online {
		c.logger.WithError(err).WithField("action", "connectivity").Warn("origin_offline")
		return
	}
	c.logger.WithField("action", "connectivity").Info("origin_reconnected")
	if callback != nil {
		go callback()
	}
}

// Online 返回当前推断的在线状态。
func (c *Connectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// ChangedAt 返回最近一次状态变化的时间。
func (c *Connectivity) ChangedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changedAt
}
