// Package strategy decides how each intercepted request is answered: it
// classifies the request, then applies network-first (navigation, API) or
// cache-first (static assets) logic against the named stores, falling back to
// synthetic responses so that every intercepted request gets an answer.
package strategy

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/logging"
)

// Source 标记响应的来源。
type Source string

const (
	SourceNetwork     Source = "network"
	SourceCache       Source = "cache"
	SourceFallback    Source = "fallback"
	SourcePassthrough Source = "passthrough"
)

// Result 是策略的处理结果。Snapshot 为 nil 仅出现在 ClassIgnored。
type Result struct {
	Class    Class
	Source   Source
	Snapshot *cache.Snapshot
}

// CacheHit 表示响应是否来自缓存。
func (r Result) CacheHit() bool {
	return r.Source == SourceCache
}

// Strategy 对单个请求给出响应，永不返回 error。
type Strategy interface {
	Serve(ctx context.Context, req *Request) Result
}

// fetchAndStore 回源，并在响应可缓存时把副本写入 store。写入失败只记录日志。
// 它会作为竞速操作运行，超时后仍会完成写入。
func fetchAndStore(ctx context.Context, fetcher Fetcher, store *cache.BoundedStore, req *Request, logger *logrus.Logger) (*cache.Snapshot, error) {
	snap, err := fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if snap.Cacheable() {
		if putErr := store.Put(ctx, req.Key(), snap); putErr != nil {
			logger.WithError(putErr).
				WithFields(logging.StoreFields("cache_put", store.Name(), req.Key())).
				Warn("cache_put_failed")
		}
	}
	return snap, nil
}

func logFallthrough(logger *logrus.Logger, class Class, req *Request, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"action":   "network_fallthrough",
		"strategy": class.String(),
		"key":      req.Key(),
	}).Debug("network_unavailable")
}
