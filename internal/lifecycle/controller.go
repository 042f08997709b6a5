package lifecycle

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/control"
	"github.com/shellcache/shellcache/internal/logging"
	"github.com/shellcache/shellcache/internal/strategy"
)

// Options 汇总控制器依赖。
type Options struct {
	AppName        string
	Names          Names
	Origin         *url.URL
	Storage        cache.Storage
	Shell          *cache.BoundedStore
	Fetcher        strategy.Fetcher
	CriticalURLs   []string
	Attempts       int
	InitialBackoff time.Duration
	SkipWaiting    bool
	Broadcaster    control.Broadcaster
	Logger         *logrus.Logger
}

// Controller 管理具名缓存的安装、激活与版本迁移，并决定代理何时接管请求。
type Controller struct {
	appName        string
	names          Names
	origin         *url.URL
	storage        cache.Storage
	shell          *cache.BoundedStore
	fetcher        strategy.Fetcher
	criticalURLs   []string
	attempts       int
	initialBackoff time.Duration
	skipWaiting    bool
	broadcaster    control.Broadcaster
	logger         *logrus.Logger

	mu            sync.RWMutex
	state         State
	skipRequested bool
	activatedAt   time.Time
}

// NewController 校验依赖并构造处于 Idle 状态的控制器。
func NewController(opts Options) (*Controller, error) {
	if opts.Storage == nil || opts.Shell == nil {
		return nil, fmt.Errorf("storage and shell store are required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if opts.Origin == nil {
		return nil, fmt.Errorf("origin is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	return &Controller{
		appName:        opts.AppName,
		names:          opts.Names,
		origin:         opts.Origin,
		storage:        opts.Storage,
		shell:          opts.Shell,
		fetcher:        opts.Fetcher,
		criticalURLs:   append([]string(nil), opts.CriticalURLs...),
		attempts:       attempts,
		initialBackoff: opts.InitialBackoff,
		skipWaiting:    opts.SkipWaiting,
		broadcaster:    opts.Broadcaster,
		logger:         logger,
	}, nil
}

// Start 执行安装；启用 SkipWaiting 或安装期间收到 SKIP_WAITING 时紧接着激活，
// 否则停留在 Installed 等待命令。
func (c *Controller) Start(ctx context.Context) error {
	if _, err := c.Install(ctx); err != nil {
		return err
	}
	c.mu.RLock()
	activate := c.skipWaiting || c.skipRequested
	c.mu.RUnlock()
	if !activate {
		c.logger.WithFields(logrus.Fields{"action": "lifecycle", "store": c.names.Shell()}).
			Info("lifecycle_waiting")
		return nil
	}
	return c.Activate(ctx)
}

// SkipWaiting 让已安装的版本立即激活；安装尚未结束时记录请求，安装完成后激活。
func (c *Controller) SkipWaiting(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle, StateInstalling:
		c.skipRequested = true
		c.mu.Unlock()
		return nil
	case StateInstalled:
		c.mu.Unlock()
		return c.Activate(ctx)
	default:
		c.mu.Unlock()
		return nil
	}
}

// Activate 删除本应用其他版本的缓存、接管请求并广播 SW_ACTIVATED。
// 清理失败只记录日志，不阻止激活。重复调用是 no-op。
func (c *Controller) Activate(ctx context.Context) error {
	if !c.transition(StateInstalled, StateActivating) {
		return nil
	}

	removed, err := c.pruneObsolete(ctx)
	fields := logrus.Fields{"action": "activate", "store": c.names.Shell(), "removed": removed}
	if err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("activate_prune_failed")
	}

	c.mu.Lock()
	if c.state == StateActivating {
		c.state = StateActive
		c.activatedAt = time.Now()
	}
	active := c.state == StateActive
	c.mu.Unlock()
	if !active {
		return nil
	}
	c.logger.WithFields(fields).Info("lifecycle_activated")

	if c.broadcaster != nil {
		msg := control.NewActivated(c.names.Version, c.names.Shell())
		if err := c.broadcaster.Broadcast(ctx, msg); err != nil {
			c.logger.WithError(err).WithFields(fields).Warn("activate_broadcast_failed")
		}
	}
	return nil
}

func (c *Controller) pruneObsolete(ctx context.Context) (int, error) {
	names, err := c.storage.Names(ctx)
	if err != nil {
		return 0, err
	}
	var (
		mu      sync.Mutex
		removed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		if !c.names.Obsolete(name) {
			continue
		}
		g.Go(func() error {
			deleted, err := c.storage.Delete(gctx, name)
			if err != nil {
				return fmt.Errorf("delete store %s: %w", name, err)
			}
			if deleted {
				mu.Lock()
				removed = append(removed, name)
				mu.Unlock()
			}
			return nil
		})
	}
	err = g.Wait()
	sort.Strings(removed)
	for _, name := range removed {
		c.logger.WithFields(logrus.Fields{"action": "activate", "store": name}).Debug("obsolete_store_deleted")
	}
	return len(removed), err
}

// Shutdown 让控制器进入 Redundant，代理随之停止接管。
func (c *Controller) Shutdown() {
	c.setState(StateRedundant)
}

// State 返回当前状态。
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Controlling 表示代理是否应对请求应用缓存策略。
func (c *Controller) Controlling() bool {
	return c.State() == StateActive
}

// Version 返回当前版本号。
func (c *Controller) Version() string {
	return c.names.Version
}

// CacheName 返回当前 shell 缓存名称。
func (c *Controller) CacheName() string {
	return c.names.Shell()
}

// Names 返回当前版本的缓存名称。
func (c *Controller) Names() Names {
	return c.names
}

// ClearCache 删除当前 shell 缓存；缓存本就不存在时同样视为成功。
func (c *Controller) ClearCache(ctx context.Context) error {
	_, err := c.storage.Delete(ctx, c.names.Shell())
	return err
}

func (c *Controller) transition(from, to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return false
	}
	c.state = to
	return true
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
