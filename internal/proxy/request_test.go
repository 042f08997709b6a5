package proxy

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/valyala/fasthttp"
)

func TestResolveTargetKeepsPathAndQuery(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()

	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)
	ctx.Request().SetRequestURI("/api/records?day=2024-06-01")

	base, _ := url.Parse("http://origin.test:8080")
	h := &Handler{origin: base}

	target := h.resolveTarget(ctx)
	if target.String() != "http://origin.test:8080/api/records?day=2024-06-01" {
		t.Fatalf("unexpected target %s", target.String())
	}
}

func TestFiberHeadersAsHTTP(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()

	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)
	ctx.Request().Header.Set("Sec-Fetch-Mode", "navigate")
	ctx.Request().Header.Set("Accept", "text/html")

	header := fiberHeadersAsHTTP(ctx)
	if header.Get("Sec-Fetch-Mode") != "navigate" || header.Get("Accept") != "text/html" {
		t.Fatalf("headers not converted: %v", header)
	}
}

func TestCopyResponseHeadersSkipsHopByHop(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()

	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)

	copyResponseHeaders(ctx, http.Header{
		"Connection":     {"keep-alive"},
		"Content-Length": {"999"},
		"Cache-Control":  {"max-age=31536000, immutable"},
		"Vary":           {"Accept", "Accept-Language"},
	})

	resp := &ctx.Response().Header
	if len(resp.Peek("Connection")) != 0 {
		t.Fatalf("connection header should not be copied")
	}
	if string(resp.Peek("Cache-Control")) != "max-age=31536000, immutable" {
		t.Fatalf("cache-control not copied: %q", resp.Peek("Cache-Control"))
	}
	vary := 0
	resp.VisitAll(func(key, _ []byte) {
		if string(key) == "Vary" {
			vary++
		}
	})
	if vary != 2 {
		t.Fatalf("expected both Vary values, got %d", vary)
	}
}
