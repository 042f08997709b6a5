package strategy

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/logging"
	"github.com/shellcache/shellcache/internal/race"
)

// Navigation 为页面导航提供 network-first：回源（限时）→ 精确缓存 →
// 外壳回退键 → 离线页面。
type Navigation struct {
	fetcher      Fetcher
	shell        *cache.BoundedStore
	timeout      time.Duration
	fallbackURIs []string
	appName      string
	logger       *logrus.Logger
}

// NewNavigation 构造导航策略。
func NewNavigation(fetcher Fetcher, shell *cache.BoundedStore, timeout time.Duration, fallbackURIs []string, appName string, logger *logrus.Logger) *Navigation {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Navigation{
		fetcher:      fetcher,
		shell:        shell,
		timeout:      timeout,
		fallbackURIs: append([]string(nil), fallbackURIs...),
		appName:      appName,
		logger:       logger,
	}
}

func (n *Navigation) Serve(ctx context.Context, req *Request) Result {
	snap, err := race.WithTimeout(ctx, n.timeout, func(ctx context.Context) (*cache.Snapshot, error) {
		return fetchAndStore(ctx, n.fetcher, n.shell, req, n.logger)
	})
	if err == nil {
		return Result{Class: ClassNavigate, Source: SourceNetwork, Snapshot: snap}
	}
	logFallthrough(n.logger, ClassNavigate, req, err)

	if hit, ok := n.shell.Lookup(ctx, req.Key()); ok {
		return Result{Class: ClassNavigate, Source: SourceCache, Snapshot: hit}
	}
	for _, uri := range n.fallbackURIs {
		if hit, ok := n.shell.Lookup(ctx, cache.RequestKey(http.MethodGet, uri)); ok {
			return Result{Class: ClassNavigate, Source: SourceCache, Snapshot: hit}
		}
	}
	return Result{Class: ClassNavigate, Source: SourceFallback, Snapshot: OfflineDocument(n.appName)}
}
