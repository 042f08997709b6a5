package strategy

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/shellcache/shellcache/internal/cache"
)

// Class 是请求分类，封闭枚举，仅在请求处理期间存在。
type Class int

const (
	ClassIgnored Class = iota
	ClassNavigate
	ClassStatic
	ClassAPI
)

func (c Class) String() string {
	switch c {
	case ClassIgnored:
		return "ignored"
	case ClassNavigate:
		return "navigate"
	case ClassStatic:
		return "static"
	case ClassAPI:
		return "api"
	default:
		return "unknown"
	}
}

// Mode 对应 Fetch 规范中的 request mode。
type Mode string

const (
	ModeNavigate   Mode = "navigate"
	ModeSameOrigin Mode = "same-origin"
	ModeNoCORS     Mode = "no-cors"
	ModeCORS       Mode = "cors"
)

// Destination 对应 Fetch 规范中的 request destination。
type Destination string

const (
	DestUnknown  Destination = ""
	DestDocument Destination = "document"
	DestImage    Destination = "image"
	DestStyle    Destination = "style"
	DestScript   Destination = "script"
	DestFont     Destination = "font"
	DestEmpty    Destination = "empty"
)

// DiagnosticsPrefix 是代理自身诊断接口的路径前缀，永远不参与缓存。
const DiagnosticsPrefix = "/-/"

// Descriptor 描述一次被拦截的请求：方法、源站 URL、模式与目标类型。
type Descriptor struct {
	Method      string
	URL         *url.URL
	Mode        Mode
	Destination Destination
}

// Request 是策略层处理的请求，URL 已指向源站。
type Request struct {
	Descriptor
	Header http.Header
}

// Key 返回缓存条目 key。
func (r *Request) Key() string {
	return cache.RequestKey(r.Method, r.URL.RequestURI())
}

// NewRequest 以站内 URI 构造一个 GET 请求，目标类型按扩展名推断。
// 安装预热与后台刷新使用它构造不来自客户端的请求。
func NewRequest(origin *url.URL, uri string) (*Request, error) {
	ref, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	target := origin.ResolveReference(ref)
	return &Request{
		Descriptor: Descriptor{
			Method:      http.MethodGet,
			URL:         target,
			Mode:        ModeNoCORS,
			Destination: destinationFromPath(target.Path),
		},
		Header: http.Header{},
	}, nil
}

// Describe 从请求行与 Fetch Metadata 头构建 Descriptor。缺少 Sec-Fetch-Mode 时，
// 接受 text/html 的 GET 视为导航；缺少 Sec-Fetch-Dest 时按扩展名推断目标类型。
func Describe(method string, target *url.URL, header http.Header) Descriptor {
	mode := Mode(strings.ToLower(strings.TrimSpace(header.Get("Sec-Fetch-Mode"))))
	dest := Destination(strings.ToLower(strings.TrimSpace(header.Get("Sec-Fetch-Dest"))))

	if mode == "" && method == http.MethodGet && strings.Contains(header.Get("Accept"), "text/html") {
		mode = ModeNavigate
	}
	if dest == DestUnknown {
		dest = destinationFromPath(target.Path)
	}
	if mode == ModeNavigate && dest == DestUnknown {
		dest = DestDocument
	}
	return Descriptor{
		Method:      strings.ToUpper(method),
		URL:         target,
		Mode:        mode,
		Destination: dest,
	}
}

func destinationFromPath(p string) Destination {
	switch strings.ToLower(path.Ext(p)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico", ".avif", ".bmp":
		return DestImage
	case ".css":
		return DestStyle
	case ".js", ".mjs":
		return DestScript
	case ".woff", ".woff2", ".ttf", ".otf":
		return DestFont
	default:
		return DestUnknown
	}
}

// Classifier 是纯函数式的分类器。
type Classifier struct {
	APIPrefix      string
	IgnorePatterns []string
}

// NewClassifier 构造分类器，apiPrefix 为空时使用 "/api/"。
func NewClassifier(apiPrefix string, ignorePatterns []string) Classifier {
	if apiPrefix == "" {
		apiPrefix = "/api/"
	}
	return Classifier{
		APIPrefix:      apiPrefix,
		IgnorePatterns: append([]string(nil), ignorePatterns...),
	}
}

// Classify 依次判断：忽略 → API → 导航 → 静态资源。
func (c Classifier) Classify(d Descriptor) Class {
	if d.Method != http.MethodGet || d.URL == nil {
		return ClassIgnored
	}
	if strings.HasPrefix(d.URL.Path, DiagnosticsPrefix) {
		return ClassIgnored
	}
	raw := d.URL.String()
	for _, pattern := range c.IgnorePatterns {
		if pattern != "" && strings.Contains(raw, pattern) {
			return ClassIgnored
		}
	}
	if strings.Contains(d.URL.Path, c.APIPrefix) {
		return ClassAPI
	}
	if d.Mode == ModeNavigate {
		return ClassNavigate
	}
	return ClassStatic
}
