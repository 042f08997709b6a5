package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/strategy"
)

// InstallReport 汇总一次预热的结果。
type InstallReport struct {
	Cached       []string
	Placeholders []string
}

// Install 顺序预热关键资源。单个 URL 最多尝试 Attempts 次（指数退避），
// 仍失败则写入占位条目；部分失败不会让安装失败，只有 ctx 取消才返回错误。
func (c *Controller) Install(ctx context.Context) (InstallReport, error) {
	var report InstallReport
	if !c.transition(StateIdle, StateInstalling) {
		return report, fmt.Errorf("install from state %s", c.State())
	}

	for _, uri := range c.criticalURLs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if c.prewarm(ctx, uri) {
			report.Cached = append(report.Cached, uri)
			continue
		}
		if err := c.writePlaceholder(ctx, uri); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{"action": "install", "url": uri}).
				Warn("install_placeholder_failed")
			continue
		}
		report.Placeholders = append(report.Placeholders, uri)
	}

	c.setState(StateInstalled)
	c.logger.WithFields(logrus.Fields{
		"action":       "install",
		"store":        c.names.Shell(),
		"cached":       len(report.Cached),
		"placeholders": len(report.Placeholders),
	}).Info("install_complete")
	return report, nil
}

func (c *Controller) prewarm(ctx context.Context, uri string) bool {
	fields := logrus.Fields{"action": "install", "url": uri}
	req, err := strategy.NewRequest(c.origin, uri)
	if err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("install_invalid_url")
		return false
	}

	var snap *cache.Snapshot
	attempt := 0
	op := func() error {
		attempt++
		fetched, err := c.fetcher.Fetch(ctx, req)
		if err != nil {
			return err
		}
		if !fetched.Cacheable() {
			return fmt.Errorf("origin returned %d", fetched.Status)
		}
		snap = fetched
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.WithError(err).WithFields(fields).
			WithFields(logrus.Fields{"attempt": attempt, "retry_in": wait.String()}).
			Debug("install_retry")
	}

	if err := backoff.RetryNotify(op, c.retryPolicy(ctx), notify); err != nil {
		c.logger.WithError(err).WithFields(fields).WithField("attempts", attempt).Warn("install_fetch_failed")
		return false
	}
	if err := c.shell.Put(ctx, req.Key(), snap); err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("install_store_failed")
		return false
	}
	c.logger.WithFields(fields).WithField("attempts", attempt).Debug("install_cached")
	return true
}

func (c *Controller) retryPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxElapsedTime = 0
	retries := uint64(0)
	if c.attempts > 1 {
		retries = uint64(c.attempts - 1)
	}
	return backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx)
}

func (c *Controller) writePlaceholder(ctx context.Context, uri string) error {
	req, err := strategy.NewRequest(c.origin, uri)
	if err != nil {
		return err
	}
	return c.shell.PutRaw(ctx, req.Key(), strategy.InstallPlaceholder(uri, c.appName))
}
