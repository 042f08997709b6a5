package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	platformerrors "github.com/jmgilman/go/errors"
)

// Storage 管理一组具名缓存（类似浏览器的 CacheStorage）。布局因驱动而异：
//
//	fs:     <StoragePath>/<store>/<sha1(key)>    # 首行为 key，其后为响应报文
//	sqlite: <StoragePath>/shellcache.db          # stores / entries 两张表
//
// 所有实现都必须保证单个 key 的 Put/Delete 是原子的。
type Storage interface {
	// Open 返回具名缓存，不存在时创建。
	Open(ctx context.Context, name string) (Store, error)

	// Has 判断具名缓存是否存在。
	Has(ctx context.Context, name string) (bool, error)

	// Names 列出所有具名缓存，按名称排序。
	Names(ctx context.Context) ([]string, error)

	// Delete 删除具名缓存及其全部条目，返回删除前是否存在。
	Delete(ctx context.Context, name string) (bool, error)

	// Close 释放底层资源。
	Close() error
}

// Store 是单个具名缓存，key 形如 "GET /app.js"。
type Store interface {
	Name() string

	// Get 返回缓存的响应。不存在时返回 ErrNotFound；报文无法解析时返回
	// CodeDatabase 错误（见 IsCorrupt）。
	Get(ctx context.Context, key string) (*Snapshot, error)

	// Put 整体替换 key 对应的条目，last-writer-wins。
	Put(ctx context.Context, key string, snap *Snapshot) error

	// Delete 删除条目，返回删除前是否存在。
	Delete(ctx context.Context, key string) (bool, error)

	// Keys 列出当前所有条目的 key。
	Keys(ctx context.Context) ([]string, error)
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = platformerrors.New(platformerrors.CodeNotFound, "cache entry not found")

// IsCorrupt 判断错误是否来自无法解析的缓存条目。
func IsCorrupt(err error) bool {
	return err != nil && platformerrors.GetCode(err) == platformerrors.CodeDatabase
}

// corrupted 将解析失败包装为 CodeDatabase，并附带 store/key 上下文。
func corrupted(err error, store, key string) error {
	return platformerrors.WrapWithContext(err, platformerrors.CodeDatabase, "cache entry corrupted", map[string]interface{}{
		"store": store,
		"key":   key,
	})
}

// RequestKey 生成条目 key：方法 + 站内 URI。
func RequestKey(method, requestURI string) string {
	if requestURI == "" {
		requestURI = "/"
	}
	return strings.ToUpper(method) + " " + requestURI
}

// KeyURI 从条目 key 中取回站内 URI。
func KeyURI(key string) string {
	if _, uri, ok := strings.Cut(key, " "); ok {
		return uri
	}
	return key
}

func validateStoreName(name string) error {
	if name == "" {
		return errors.New("store name required")
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid store name %q", name)
	}
	return nil
}
