// Package revalidate 在请求路径之外刷新外壳缓存：按固定间隔、源站恢复可达后
// 或按需重新拉取关键资源列表。
package revalidate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/control"
	"github.com/shellcache/shellcache/internal/logging"
	"github.com/shellcache/shellcache/internal/strategy"
)

// Gate 报告代理当前是否接管请求；未接管时跳过刷新。
type Gate interface {
	Controlling() bool
}

// Options 配置 Revalidator。
type Options struct {
	Origin      *url.URL
	Fetcher     strategy.Fetcher
	Shell       *cache.BoundedStore
	URLs        []string
	Interval    time.Duration
	Gate        Gate
	Broadcaster control.Broadcaster
	Logger      *logrus.Logger
}

// Report 汇总一轮刷新的结果。
type Report struct {
	Skipped   bool
	Refreshed []string
	Failed    []string
}

// Revalidator 执行刷新。各轮之间不重叠，运行期间到达的多次触发
// 合并为一轮后续刷新。
type Revalidator struct {
	origin      *url.URL
	fetcher     strategy.Fetcher
	shell       *cache.BoundedStore
	urls        []string
	interval    time.Duration
	gate        Gate
	broadcaster control.Broadcaster
	logger      *logrus.Logger
	now         func() time.Time

	trigger chan struct{}
	passMu  sync.Mutex
}

// New 构造 Revalidator。
func New(opts Options) (*Revalidator, error) {
	if opts.Fetcher == nil || opts.Shell == nil || opts.Origin == nil {
		return nil, fmt.Errorf("origin, fetcher and shell store are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Revalidator{
		origin:      opts.Origin,
		fetcher:     opts.Fetcher,
		shell:       opts.Shell,
		urls:        append([]string(nil), opts.URLs...),
		interval:    opts.Interval,
		gate:        opts.Gate,
		broadcaster: opts.Broadcaster,
		logger:      logger,
		now:         time.Now,
		trigger:     make(chan struct{}, 1),
	}, nil
}

// Trigger 非阻塞地请求一轮刷新。
func (r *Revalidator) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run 处理定时器与触发，直到 ctx 取消。间隔为 0 时不启用定时器，
// 触发仍然有效。
func (r *Revalidator) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		case <-r.trigger:
		}
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).WithField("action", "revalidate").Warn("revalidate_pass_failed")
		}
	}
}

// RunOnce 执行一轮刷新。单个 URL 的失败只记录并计入 Report，不作为 error 返回。
func (r *Revalidator) RunOnce(ctx context.Context) (Report, error) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	var report Report
	if r.gate != nil && !r.gate.Controlling() {
		report.Skipped = true
		r.logger.WithField("action", "revalidate").Debug("revalidate_skipped")
		return report, nil
	}

	for _, uri := range r.urls {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := r.refresh(ctx, uri); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{"action": "revalidate", "url": uri}).
				Warn("revalidate_failed")
			report.Failed = append(report.Failed, uri)
			continue
		}
		report.Refreshed = append(report.Refreshed, uri)
	}

	r.logger.WithFields(logrus.Fields{
		"action":    "revalidate",
		"store":     r.shell.Name(),
		"refreshed": len(report.Refreshed),
		"failed":    len(report.Failed),
	}).Info("revalidate_complete")

	if r.broadcaster != nil {
		if err := r.broadcaster.Broadcast(ctx, control.NewSyncComplete(r.now())); err != nil {
			r.logger.WithError(err).WithField("action", "revalidate").Warn("revalidate_broadcast_failed")
		}
	}
	return report, nil
}

func (r *Revalidator) refresh(ctx context.Context, uri string) error {
	req, err := strategy.NewRequest(r.origin, uri)
	if err != nil {
		return err
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	snap, err := r.fetcher.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if snap.Status != http.StatusOK || !snap.Cacheable() {
		return fmt.Errorf("origin returned %d", snap.Status)
	}
	return r.shell.Put(ctx, req.Key(), snap)
}
