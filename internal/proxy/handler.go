package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/logging"
	"github.com/shellcache/shellcache/internal/server"
	"github.com/shellcache/shellcache/internal/strategy"
)

// 响应注解头。
const (
	HeaderStrategy = "X-Shellcache-Strategy"
	HeaderSource   = "X-Shellcache-Source"
)

// Gate reports whether cache strategies apply. Before activation every request
// passes straight through to the origin.
type Gate interface {
	Controlling() bool
}

// Options 汇总 Handler 依赖。
type Options struct {
	Client     *http.Client
	Origin     *url.URL
	Dispatcher *strategy.Dispatcher
	Gate       Gate
	AppName    string
	CacheName  string
	ListenPort int
	Logger     *logrus.Logger
}

// Handler 是拦截边界：把 Fiber 请求转换为策略请求，交给 Dispatcher，
// 再把结果写回客户端；被忽略或尚未接管的请求原样透传到源站。
type Handler struct {
	client     *http.Client
	origin     *url.URL
	dispatcher *strategy.Dispatcher
	gate       Gate
	appName    string
	cacheName  string
	listenPort int
	logger     *logrus.Logger
}

// NewHandler constructs a proxy handler with shared HTTP client/logger/dispatcher.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Origin == nil {
		return nil, errors.New("origin is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Handler{
		client:     client,
		origin:     opts.Origin,
		dispatcher: opts.Dispatcher,
		gate:       opts.Gate,
		appName:    opts.AppName,
		cacheName:  opts.CacheName,
		listenPort: opts.ListenPort,
		logger:     logger,
	}, nil
}

// Handle implements server.ProxyHandler. Every request receives a response.
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	header := fiberHeadersAsHTTP(c)
	target := h.resolveTarget(c)
	req := &strategy.Request{
		Descriptor: strategy.Describe(c.Method(), target, header),
		Header:     header,
	}

	if h.gate != nil && !h.gate.Controlling() {
		return h.passthrough(c, req, h.dispatcher.Classify(req), requestID, started)
	}

	result, err := h.dispatcher.Serve(ctx, req)
	if err != nil {
		return err
	}
	if result.Snapshot == nil {
		return h.passthrough(c, req, result.Class, requestID, started)
	}
	return h.writeResult(c, req, result, requestID, started)
}

func (h *Handler) writeResult(c fiber.Ctx, req *strategy.Request, result strategy.Result, requestID string, started time.Time) error {
	snap := result.Snapshot
	copyResponseHeaders(c, snap.Header)
	c.Set(HeaderStrategy, result.Class.String())
	c.Set(HeaderSource, string(result.Source))
	c.Status(snap.Status)

	err := c.Send(snap.Body)
	h.logResult(req, result.Class, result.Source, snap.Status, requestID, started, err)
	return err
}

// passthrough 原样转发请求并流式回写响应；源站不可达时返回 502。
func (h *Handler) passthrough(c fiber.Ctx, req *strategy.Request, class strategy.Class, requestID string, started time.Time) error {
	upstreamReq, err := h.buildUpstreamRequest(c, req.URL)
	if err != nil {
		h.logResult(req, class, strategy.SourcePassthrough, fiber.StatusBadGateway, requestID, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}

	resp, err := h.client.Do(upstreamReq)
	if err != nil {
		h.logResult(req, class, strategy.SourcePassthrough, fiber.StatusBadGateway, requestID, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	c.Set(HeaderStrategy, class.String())
	c.Set(HeaderSource, string(strategy.SourcePassthrough))
	c.Status(resp.StatusCode)

	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	h.logResult(req, class, strategy.SourcePassthrough, resp.StatusCode, requestID, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	return nil
}

func (h *Handler) buildUpstreamRequest(c fiber.Ctx, upstream *url.URL) (*http.Request, error) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var body io.Reader = http.NoBody
	if raw := c.Body(); len(raw) > 0 {
		body = bytes.NewReader(append([]byte(nil), raw...))
	}

	req, err := http.NewRequestWithContext(ctx, c.Method(), upstream.String(), body)
	if err != nil {
		return nil, err
	}

	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Accept-Encoding")
	req.Header.Del("Content-Length")
	req.Host = upstream.Host
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Protocol())
	req.Header.Set("X-Forwarded-Port", strconv.Itoa(h.listenPort))
	return req, nil
}

func (h *Handler) resolveTarget(c fiber.Ctx) *url.URL {
	uri := c.Request().URI()
	relative := &url.URL{Path: string(uri.Path())}
	if query := uri.QueryString(); len(query) > 0 {
		relative.RawQuery = string(query)
	}
	return h.origin.ResolveReference(relative)
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	req *strategy.Request,
	class strategy.Class,
	source strategy.Source,
	status int,
	requestID string,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(h.appName, h.cacheName, class.String(), string(source), source == strategy.SourceCache)
	fields["action"] = "proxy"
	fields["method"] = req.Method
	fields["key"] = cache.RequestKey(req.Method, req.URL.RequestURI())
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) || http.CanonicalHeaderKey(key) == "Content-Length" {
			continue
		}
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
}
