package control

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/logging"
)

// Lifecycle 是命令通道需要驱动的生命周期能力。
type Lifecycle interface {
	SkipWaiting(ctx context.Context) error
	Version() string
	CacheName() string
	ClearCache(ctx context.Context) error
}

// Channel 分发入站命令，未知或格式错误的命令直接忽略。
type Channel struct {
	lifecycle Lifecycle
	logger    *logrus.Logger
	now       func() time.Time
}

// NewChannel 构造命令通道。
func NewChannel(lifecycle Lifecycle, logger *logrus.Logger) *Channel {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Channel{lifecycle: lifecycle, logger: logger, now: time.Now}
}

// Handle 执行 msg，命令有回复时返回 (reply, true)。
func (c *Channel) Handle(ctx context.Context, msg Message) (any, bool) {
	fields := logrus.Fields{"action": "control", "type": msg.Type}

	switch msg.Type {
	case TypeSkipWaiting:
		if err := c.lifecycle.SkipWaiting(ctx); err != nil {
			c.logger.WithError(err).WithFields(fields).Warn("skip_waiting_failed")
		}
		return nil, false
	case TypeGetVersion:
		return VersionInfo{
			Type:      TypeVersionInfo,
			Version:   c.lifecycle.Version(),
			CacheName: c.lifecycle.CacheName(),
			Timestamp: ISOTimestamp(c.now()),
		}, true
	case TypeClearCache:
		err := c.lifecycle.ClearCache(ctx)
		if err != nil {
			c.logger.WithError(err).WithFields(fields).Warn("clear_cache_failed")
		} else {
			c.logger.WithFields(fields).Info("cache_cleared")
		}
		return CacheCleared{Type: TypeCacheCleared, Success: err == nil}, true
	default:
		c.logger.WithFields(fields).Debug("control_ignored")
		return nil, false
	}
}

// HandleRaw 解码 JSON 命令并编码回复。
func (c *Channel) HandleRaw(ctx context.Context, raw []byte) ([]byte, bool) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.WithError(err).WithField("action", "control").Debug("control_malformed")
		return nil, false
	}
	reply, ok := c.Handle(ctx, msg)
	if !ok {
		return nil, false
	}
	encoded, err := json.Marshal(reply)
	if err != nil {
		c.logger.WithError(err).WithField("action", "control").Warn("control_reply_encode_failed")
		return nil, false
	}
	return encoded, true
}
