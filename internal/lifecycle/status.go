package lifecycle

import (
	"context"
	"time"
)

// StoreInfo describes one named store.
type StoreInfo struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Current bool   `json:"current"`
}

// Status is the diagnostics view of the controller.
type Status struct {
	Version      string      `json:"version"`
	CacheName    string      `json:"cacheName"`
	APICacheName string      `json:"apiCacheName"`
	State        string      `json:"state"`
	ActivatedAt  *time.Time  `json:"activatedAt,omitempty"`
	Stores       []StoreInfo `json:"stores"`
}

// Status lists every named store with its entry count. Stores that cannot be
// read are reported with -1 entries.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	c.mu.RLock()
	st := Status{
		Version:      c.names.Version,
		CacheName:    c.names.Shell(),
		APICacheName: c.names.API(),
		State:        c.state.String(),
	}
	if !c.activatedAt.IsZero() {
		at := c.activatedAt.UTC()
		st.ActivatedAt = &at
	}
	c.mu.RUnlock()

	names, err := c.storage.Names(ctx)
	if err != nil {
		return st, err
	}
	st.Stores = make([]StoreInfo, 0, len(names))
	for _, name := range names {
		info := StoreInfo{Name: name, Entries: -1, Current: c.names.Current(name)}
		if store, err := c.storage.Open(ctx, name); err == nil {
			if keys, err := store.Keys(ctx); err == nil {
				info.Entries = len(keys)
			}
		}
		st.Stores = append(st.Stores, info)
	}
	return st, nil
}
