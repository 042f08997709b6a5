package cache

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// HeaderCachedAt 记录条目写入缓存的时间（RFC3339Nano, UTC）。
	HeaderCachedAt = "X-Shellcache-Cached-At"
	// HeaderSynthetic 标记安装阶段生成的占位条目，静态策略总是视其为过期。
	HeaderSynthetic = "X-Shellcache-Synthetic"
)

// Snapshot 是一次完整 HTTP 响应的内存副本：状态码、头部与正文。
// 写入缓存的 Snapshot 不会被原地修改，策略层需要变更时先 Clone。
type Snapshot struct {
	Status int
	Header http.Header
	Body   []byte

	// Opaque 表示响应经重定向离开了源站，不会被持久化。
	Opaque bool
}

// NewSnapshot 构造一个 Snapshot，header 会被复制。
func NewSnapshot(status int, header http.Header, body []byte) *Snapshot {
	if header == nil {
		header = http.Header{}
	}
	return &Snapshot{
		Status: status,
		Header: header.Clone(),
		Body:   body,
	}
}

// Clone 返回深拷贝，调用方可以安全修改。
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	body := make([]byte, len(s.Body))
	copy(body, s.Body)
	return &Snapshot{
		Status: s.Status,
		Header: s.Header.Clone(),
		Body:   body,
		Opaque: s.Opaque,
	}
}

// Stamp 返回带有缓存时间戳的副本。
func (s *Snapshot) Stamp(at time.Time) *Snapshot {
	clone := s.Clone()
	if clone.Header == nil {
		clone.Header = http.Header{}
	}
	clone.Header.Set(HeaderCachedAt, at.UTC().Format(time.RFC3339Nano))
	return clone
}

// OK 对应 fetch 语义中的 response.ok：2xx。
func (s *Snapshot) OK() bool {
	return s != nil && s.Status >= 200 && s.Status < 300
}

// Cacheable 判断响应能否写入共享缓存：2xx（206 除外）、未离开源站，
// 且源站没有用 no-store / private 限制共享存储。
func (s *Snapshot) Cacheable() bool {
	return s.OK() && s.Status != http.StatusPartialContent && !s.Opaque && !s.Private()
}

// Private 表示 Cache-Control 含 no-store 或 private。
func (s *Snapshot) Private() bool {
	if s == nil {
		return false
	}
	for _, value := range s.Header.Values("Cache-Control") {
		for _, directive := range strings.Split(value, ",") {
			name, _, _ := strings.Cut(strings.TrimSpace(directive), "=")
			switch strings.ToLower(strings.TrimSpace(name)) {
			case "no-store", "private":
				return true
			}
		}
	}
	return false
}

// perUserHeaders 只属于单个客户端，不随共享条目保存。
var perUserHeaders = []string{"Set-Cookie", "Set-Cookie2"}

// Shareable 返回去掉 Set-Cookie 等用户级头部的副本。
func (s *Snapshot) Shareable() *Snapshot {
	clone := s.Clone()
	if clone == nil {
		return nil
	}
	for _, name := range perUserHeaders {
		clone.Header.Del(name)
	}
	return clone
}

// Synthetic 表示条目是否为安装阶段的占位内容。
func (s *Snapshot) Synthetic() bool {
	return s != nil && s.Header.Get(HeaderSynthetic) != ""
}

// CachedAt 解析缓存时间戳头。
func (s *Snapshot) CachedAt() (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	raw := strings.TrimSpace(s.Header.Get(HeaderCachedAt))
	if raw == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// Timestamp 返回条目的有效时间：缓存时间戳 → Date → Last-Modified → fallback。
func (s *Snapshot) Timestamp(fallback time.Time) time.Time {
	if at, ok := s.CachedAt(); ok {
		return at
	}
	if s == nil {
		return fallback
	}
	for _, name := range []string{"Date", "Last-Modified"} {
		if raw := s.Header.Get(name); raw != "" {
			if parsed, err := http.ParseTime(raw); err == nil {
				return parsed
			}
		}
	}
	return fallback
}

// Immutable 识别 Cache-Control 中的 immutable 或一年期 max-age。
func (s *Snapshot) Immutable() bool {
	if s == nil {
		return false
	}
	cc := strings.ToLower(s.Header.Get("Cache-Control"))
	return strings.Contains(cc, "immutable") || strings.Contains(cc, "max-age=31536000")
}

// Encode 以 HTTP/1.1 响应报文格式写出 Snapshot。
func (s *Snapshot) Encode(w io.Writer) error {
	resp := &http.Response{
		StatusCode:    s.Status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        s.Header.Clone(),
		ContentLength: int64(len(s.Body)),
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
	}
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	return resp.Write(w)
}

// Decode 解析 Encode 写出的报文。
func Decode(r io.Reader) (*Snapshot, error) {
	resp, err := http.ReadResponse(bufio.NewReader(r), nil)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.ContentLength >= 0 && int64(len(body)) != resp.ContentLength {
		return nil, fmt.Errorf("body truncated: %d of %d bytes", len(body), resp.ContentLength)
	}

	header := resp.Header
	header.Del("Content-Length")
	return &Snapshot{
		Status: resp.StatusCode,
		Header: header,
		Body:   body,
	}, nil
}
