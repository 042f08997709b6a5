package strategy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/server"
)

// Fetcher 从源站获取完整响应。返回 error 仅表示网络不可达（含超时），
// 任何 HTTP 状态码都算作成功获取。
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*cache.Snapshot, error)
}

// FetcherFunc 将函数适配为 Fetcher，便于测试注入。
type FetcherFunc func(ctx context.Context, req *Request) (*cache.Snapshot, error)

// Fetch makes FetcherFunc satisfy Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*cache.Snapshot, error) {
	return f(ctx, req)
}

// NetworkObserver 接收每次源站请求的结果，用于跟踪在线状态。
type NetworkObserver interface {
	ObserveFetch(err error)
}

// conditionalHeaders 会让源站返回 304，缓存需要完整正文，因此回源前移除。
var conditionalHeaders = []string{
	"If-None-Match",
	"If-Modified-Since",
	"If-Match",
	"If-Unmodified-Since",
	"If-Range",
}

// HTTPFetcher 使用共享 http.Client 访问源站，并把响应完整读入内存。
type HTTPFetcher struct {
	client   *http.Client
	origin   *url.URL
	observer NetworkObserver
}

// NewHTTPFetcher 构造 Fetcher；observer 可为 nil。
func NewHTTPFetcher(client *http.Client, origin *url.URL, observer NetworkObserver) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, origin: origin, observer: observer}
}

// Fetch 发起请求并读取完整响应。跨源重定向后的响应标记为 Opaque。
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*cache.Snapshot, error) {
	snap, err := f.fetch(ctx, req)
	if f.observer != nil {
		f.observer.ObserveFetch(err)
	}
	return snap, err
}

func (f *HTTPFetcher) fetch(ctx context.Context, req *Request) (*cache.Snapshot, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build origin request: %w", err)
	}
	if req.Header != nil {
		server.CopyHeaders(httpReq.Header, req.Header)
	}
	for _, name := range conditionalHeaders {
		httpReq.Header.Del(name)
	}
	httpReq.Header.Del("Accept-Encoding")
	httpReq.Host = req.URL.Host

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, networkError(err, req)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(err, req)
	}

	header := http.Header{}
	for key, values := range resp.Header {
		if server.IsHopByHopHeader(key) || http.CanonicalHeaderKey(key) == "Content-Length" {
			continue
		}
		header[key] = append([]string(nil), values...)
	}

	snap := cache.NewSnapshot(resp.StatusCode, header, body)
	snap.Opaque = f.leftOrigin(resp)
	return snap, nil
}

func (f *HTTPFetcher) leftOrigin(resp *http.Response) bool {
	if f.origin == nil || resp.Request == nil || resp.Request.URL == nil {
		return false
	}
	final := resp.Request.URL
	return final.Scheme != f.origin.Scheme || final.Host != f.origin.Host
}

// networkError 将传输层错误归类为 NETWORK_ERROR 或 TIMEOUT。
func networkError(err error, req *Request) error {
	code := platformerrors.CodeNetwork
	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		code = platformerrors.CodeTimeout
	}
	return platformerrors.WrapWithContext(err, code, "origin unreachable", map[string]interface{}{
		"url": req.URL.String(),
	})
}

// IsNetworkError 判断错误是否表示网络不可达（含超时）。
func IsNetworkError(err error) bool {
	switch platformerrors.GetCode(err) {
	case platformerrors.CodeNetwork, platformerrors.CodeTimeout:
		return true
	default:
		return false
	}
}
