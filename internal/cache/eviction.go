package cache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// evictionReadLimit 限制并发读取条目时间戳的 goroutine 数量。
const evictionReadLimit = 8

// Evict 在条目数超过 maxEntries 时删除最旧的条目，直到恰好剩下 maxEntries 个。
// 条目时间取缓存时间戳、Date、Last-Modified，均缺失或条目无法读取时视为 now。
// 返回删除的条目数。
func Evict(ctx context.Context, store Store, maxEntries int, now time.Time) (int, error) {
	if maxEntries < 0 {
		return 0, fmt.Errorf("invalid max entries %d", maxEntries)
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list keys of %s: %w", store.Name(), err)
	}
	if len(keys) <= maxEntries {
		return 0, nil
	}

	type stamped struct {
		key string
		at  time.Time
	}
	entries := make([]stamped, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(evictionReadLimit)
	for i, key := range keys {
		g.Go(func() error {
			at := now
			if snap, err := store.Get(gctx, key); err == nil {
				at = snap.Timestamp(now)
			}
			entries[i] = stamped{key: key, at: at}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].at.Before(entries[j].at)
	})

	removed := 0
	for _, entry := range entries[:len(entries)-maxEntries] {
		deleted, err := store.Delete(ctx, entry.key)
		if err != nil {
			return removed, fmt.Errorf("evict %s: %w", entry.key, err)
		}
		if deleted {
			removed++
		}
	}
	return removed, nil
}
