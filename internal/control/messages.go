package control

import "time"

// 消息类型。
const (
	TypeSkipWaiting  = "SKIP_WAITING"
	TypeGetVersion   = "GET_VERSION"
	TypeClearCache   = "CLEAR_CACHE"
	TypeVersionInfo  = "VERSION_INFO"
	TypeCacheCleared = "CACHE_CLEARED"
	TypeActivated    = "SW_ACTIVATED"
	TypeSyncComplete = "BACKGROUND_SYNC_COMPLETE"
)

// Message 是入站命令，只读取 Type。
type Message struct {
	Type string `json:"type"`
}

// VersionInfo 是 GET_VERSION 的回复。
type VersionInfo struct {
	Type      string `json:"type"`
	Version   string `json:"version"`
	CacheName string `json:"cacheName"`
	Timestamp string `json:"timestamp"`
}

// CacheCleared 是 CLEAR_CACHE 的回复。
type CacheCleared struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
}

// Activated 在激活完成后广播。
type Activated struct {
	Type      string `json:"type"`
	Version   string `json:"version"`
	CacheName string `json:"cacheName"`
}

// SyncComplete 在每轮后台刷新结束后广播。
type SyncComplete struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// NewActivated 构造 SW_ACTIVATED 通知。
func NewActivated(version, cacheName string) Activated {
	return Activated{Type: TypeActivated, Version: version, CacheName: cacheName}
}

// NewSyncComplete 构造 BACKGROUND_SYNC_COMPLETE 通知。
func NewSyncComplete(at time.Time) SyncComplete {
	return SyncComplete{Type: TypeSyncComplete, Timestamp: ISOTimestamp(at)}
}

// ISOTimestamp 以 UTC 毫秒精度格式化 t，例如 2024-06-01T08:30:00.000Z。
func ISOTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
