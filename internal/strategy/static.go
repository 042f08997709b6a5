package strategy

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/logging"
)

// Static 为静态资源提供 cache-first：新鲜或不可变的命中直接返回，
// 否则同步回源；回源失败时退回过期副本或按类型生成占位内容。
type Static struct {
	fetcher Fetcher
	shell   *cache.BoundedStore
	maxAge  time.Duration
	logger  *logrus.Logger
}

// NewStatic 构造静态资源策略。
func NewStatic(fetcher Fetcher, shell *cache.BoundedStore, maxAge time.Duration, logger *logrus.Logger) *Static {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Static{fetcher: fetcher, shell: shell, maxAge: maxAge, logger: logger}
}

func (s *Static) Serve(ctx context.Context, req *Request) Result {
	hit, ok := s.shell.Lookup(ctx, req.Key())
	if ok && s.fresh(hit) {
		return Result{Class: ClassStatic, Source: SourceCache, Snapshot: hit}
	}

	snap, err := fetchAndStore(ctx, s.fetcher, s.shell, req, s.logger)
	if err == nil {
		return Result{Class: ClassStatic, Source: SourceNetwork, Snapshot: snap}
	}
	logFallthrough(s.logger, ClassStatic, req, err)

	if ok {
		return Result{Class: ClassStatic, Source: SourceCache, Snapshot: hit}
	}
	return Result{Class: ClassStatic, Source: SourceFallback, Snapshot: StaticFallback(req.Destination)}
}

// fresh 判断命中是否可直接使用。安装占位条目总是需要回源。
func (s *Static) fresh(hit *cache.Snapshot) bool {
	if hit.Synthetic() {
		return false
	}
	if hit.Immutable() {
		return true
	}
	now := s.shell.Now()
	return now.Sub(hit.Timestamp(now)) < s.maxAge
}
