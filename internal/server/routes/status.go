package routes

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"github.com/shellcache/shellcache/internal/lifecycle"
	"github.com/shellcache/shellcache/internal/version"
)

// StatusProvider 返回生命周期与缓存概况。
type StatusProvider interface {
	Status(ctx context.Context) (lifecycle.Status, error)
}

// OnlineReporter 返回源站是否可达。
type OnlineReporter interface {
	Online() bool
}

type statusPayload struct {
	lifecycle.Status
	Online bool   `json:"online"`
	Build  string `json:"build"`
}

// RegisterStatusRoutes 暴露 /-/status 诊断接口，供运维查询版本、状态与缓存条目数。
func RegisterStatusRoutes(app *fiber.App, provider StatusProvider, online OnlineReporter) {
	if app == nil || provider == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		status, err := provider.Status(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "status_unavailable"})
		}
		payload := statusPayload{
			Status: status,
			Online: online == nil || online.Online(),
			Build:  version.Full(),
		}
		return c.JSON(payload)
	})
}
