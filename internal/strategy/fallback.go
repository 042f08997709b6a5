package strategy

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"html/template"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/shellcache/shellcache/internal/cache"
)

//go:embed templates/offline.html
var offlineTemplateSource string

var offlineTemplate = template.Must(template.New("offline").Parse(offlineTemplateSource))

const placeholderSVG = `<svg width="100" height="100" xmlns="http://www.w3.org/2000/svg"><rect width="100" height="100" fill="#f0f0f0"/><text x="50" y="50" text-anchor="middle" dy=".3em" font-family="Arial" font-size="10" fill="#666">IMG</text></svg>`

// OfflineMessage 是 API 离线响应中的提示文案。
const OfflineMessage = "You are offline. Showing locally saved data where available."

func syntheticHeader(contentType string) http.Header {
	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set("Cache-Control", "no-cache")
	return header
}

// OfflineDocument 渲染离线页面：200、HTML、包含重试与继续离线两个操作，永不缓存。
func OfflineDocument(appName string) *cache.Snapshot {
	var buf bytes.Buffer
	if err := offlineTemplate.Execute(&buf, struct{ Name string }{Name: appName}); err != nil {
		buf.Reset()
		buf.WriteString("<!DOCTYPE html><title>Offline</title><p>You are offline.</p>")
	}
	return cache.NewSnapshot(http.StatusOK, syntheticHeader("text/html; charset=utf-8"), buf.Bytes())
}

// StaticFallback 按目标类型返回占位响应；无法识别的类型返回 503。
func StaticFallback(dest Destination) *cache.Snapshot {
	switch dest {
	case DestImage:
		return cache.NewSnapshot(http.StatusOK, syntheticHeader("image/svg+xml"), []byte(placeholderSVG))
	case DestStyle:
		return cache.NewSnapshot(http.StatusOK, syntheticHeader("text/css"), []byte("/* offline */"))
	case DestScript:
		return cache.NewSnapshot(http.StatusOK, syntheticHeader("application/javascript"), []byte("// offline"))
	default:
		return cache.NewSnapshot(http.StatusServiceUnavailable, syntheticHeader("text/plain; charset=utf-8"), []byte("Service Unavailable"))
	}
}

type offlinePayload struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// OfflineAPI 返回 API 离线 JSON：{"error":"offline","message":...,"timestamp":...}。
func OfflineAPI(now time.Time) *cache.Snapshot {
	body, _ := json.Marshal(offlinePayload{
		Error:     "offline",
		Message:   OfflineMessage,
		Timestamp: now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	return cache.NewSnapshot(http.StatusOK, syntheticHeader("application/json; charset=utf-8"), body)
}

// InstallPlaceholder 为预热失败的关键资源生成占位条目：.js → 空脚本，
// .css → 空样式，其余 → 离线页面。条目带有 Synthetic 标记。
func InstallPlaceholder(uri, appName string) *cache.Snapshot {
	var snap *cache.Snapshot
	p := uri
	if idx := strings.IndexAny(p, "?#"); idx >= 0 {
		p = p[:idx]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".js", ".mjs":
		snap = cache.NewSnapshot(http.StatusOK, syntheticHeader("application/javascript"), []byte("// Fallback JS"))
	case ".css":
		snap = cache.NewSnapshot(http.StatusOK, syntheticHeader("text/css"), []byte("/* Fallback CSS */"))
	default:
		snap = OfflineDocument(appName)
	}
	snap.Header.Set(cache.HeaderSynthetic, "install")
	return snap
}
