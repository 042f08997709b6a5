package cache

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/logging"
)

// ErrStoreUnavailable 表示 BoundedStore 未注入 Storage。
var ErrStoreUnavailable = errors.New("cache store unavailable")

// BoundedStore 绑定一个具名缓存与其条目上限：每次写入后同步执行淘汰。
// 每次操作都会重新 Open 具名缓存，因此缓存被清空或删除后的写入会自动重建。
type BoundedStore struct {
	storage    Storage
	name       string
	maxEntries int
	logger     *logrus.Logger
	now        func() time.Time
}

// NewBoundedStore 构造有上限的写入器，默认使用 time.Now 作为时钟。
func NewBoundedStore(storage Storage, name string, maxEntries int, logger *logrus.Logger) *BoundedStore {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &BoundedStore{
		storage:    storage,
		name:       name,
		maxEntries: maxEntries,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock 替换时钟，测试中用于构造确定的时间戳。
func (b *BoundedStore) WithClock(now func() time.Time) *BoundedStore {
	b.now = now
	return b
}

// Name 返回具名缓存名称。
func (b *BoundedStore) Name() string {
	return b.name
}

// MaxEntries 返回条目上限。
func (b *BoundedStore) MaxEntries() int {
	return b.maxEntries
}

// Now 返回当前时钟读数，策略层用它计算新鲜度，保证与写入时间戳同源。
func (b *BoundedStore) Now() time.Time {
	return b.now()
}

// Lookup 读取条目。损坏的条目会被记录并按未命中处理，返回 (nil, false)。
func (b *BoundedStore) Lookup(ctx context.Context, key string) (*Snapshot, bool) {
	if b.storage == nil {
		return nil, false
	}
	exists, err := b.storage.Has(ctx, b.name)
	if err != nil || !exists {
		return nil, false
	}
	store, err := b.storage.Open(ctx, b.name)
	if err != nil {
		b.logger.WithError(err).WithFields(logging.StoreFields("cache_open", b.name, key)).Warn("cache_open_failed")
		return nil, false
	}
	snap, err := store.Get(ctx, key)
	switch {
	case err == nil:
		return snap, true
	case errors.Is(err, ErrNotFound):
		return nil, false
	case IsCorrupt(err):
		b.logger.WithError(err).WithFields(logging.StoreFields("cache_get", b.name, key)).Warn("cache_entry_corrupted")
		return nil, false
	default:
		b.logger.WithError(err).WithFields(logging.StoreFields("cache_get", b.name, key)).Warn("cache_get_failed")
		return nil, false
	}
}

// Put 写入去掉 Set-Cookie 且带时间戳的副本，并立即淘汰超限条目。
func (b *BoundedStore) Put(ctx context.Context, key string, snap *Snapshot) error {
	if b.storage == nil {
		return ErrStoreUnavailable
	}
	store, err := b.storage.Open(ctx, b.name)
	if err != nil {
		return err
	}
	now := b.now()
	if err := store.Put(ctx, key, snap.Shareable().Stamp(now)); err != nil {
		return err
	}
	removed, err := Evict(ctx, store, b.maxEntries, now)
	if err != nil {
		return err
	}
	if removed > 0 {
		b.logger.WithFields(logging.StoreFields("cache_evict", b.name, key)).
			WithField("removed", removed).Debug("cache_evicted")
	}
	return nil
}

// PutRaw 原样写入（不追加时间戳），用于安装阶段的占位条目。
func (b *BoundedStore) PutRaw(ctx context.Context, key string, snap *Snapshot) error {
	if b.storage == nil {
		return ErrStoreUnavailable
	}
	store, err := b.storage.Open(ctx, b.name)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, key, snap); err != nil {
		return err
	}
	_, err = Evict(ctx, store, b.maxEntries, b.now())
	return err
}
