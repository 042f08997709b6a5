package strategy

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/logging"
	"github.com/shellcache/shellcache/internal/race"
)

// API 为数据接口提供 network-first：回源（限时）并写入 API 缓存，失败时
// 返回上一次成功的响应，再失败则返回离线 JSON。
type API struct {
	fetcher Fetcher
	store   *cache.BoundedStore
	timeout time.Duration
	logger  *logrus.Logger
}

// NewAPI 构造 API 策略。
func NewAPI(fetcher Fetcher, store *cache.BoundedStore, timeout time.Duration, logger *logrus.Logger) *API {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &API{fetcher: fetcher, store: store, timeout: timeout, logger: logger}
}

func (a *API) Serve(ctx context.Context, req *Request) Result {
	snap, err := race.WithTimeout(ctx, a.timeout, func(ctx context.Context) (*cache.Snapshot, error) {
		return fetchAndStore(ctx, a.fetcher, a.store, req, a.logger)
	})
	if err == nil {
		return Result{Class: ClassAPI, Source: SourceNetwork, Snapshot: snap}
	}
	logFallthrough(a.logger, ClassAPI, req, err)

	if hit, ok := a.store.Lookup(ctx, req.Key()); ok {
		return Result{Class: ClassAPI, Source: SourceCache, Snapshot: hit}
	}
	return Result{Class: ClassAPI, Source: SourceFallback, Snapshot: OfflineAPI(a.store.Now())}
}
