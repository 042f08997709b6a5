package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/logging"
)

// Options 汇总构建 Dispatcher 所需的依赖与参数。
type Options struct {
	AppName           string
	Classifier        Classifier
	Fetcher           Fetcher
	Shell             *cache.BoundedStore
	API               *cache.BoundedStore
	NavigationTimeout time.Duration
	APITimeout        time.Duration
	StaticMaxAge      time.Duration
	FallbackURIs      []string
	Logger            *logrus.Logger
}

// Dispatcher 是拦截层的唯一入口：分类后委派给对应策略。
type Dispatcher struct {
	classifier Classifier
	navigation Strategy
	static     Strategy
	api        Strategy
}

// NewDispatcher 按 Options 构建三种策略。
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if opts.Shell == nil || opts.API == nil {
		return nil, fmt.Errorf("shell and api stores are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Dispatcher{
		classifier: opts.Classifier,
		navigation: NewNavigation(opts.Fetcher, opts.Shell, opts.NavigationTimeout, opts.FallbackURIs, opts.AppName, logger),
		static:     NewStatic(opts.Fetcher, opts.Shell, opts.StaticMaxAge, logger),
		api:        NewAPI(opts.Fetcher, opts.API, opts.APITimeout, logger),
	}, nil
}

// Classify 暴露分类结果，供调用方决定是否透传。
func (d *Dispatcher) Classify(req *Request) Class {
	return d.classifier.Classify(req.Descriptor)
}

// Serve 处理请求。ClassIgnored 返回 Snapshot 为 nil 的结果，由调用方透传。
func (d *Dispatcher) Serve(ctx context.Context, req *Request) (Result, error) {
	switch class := d.Classify(req); class {
	case ClassIgnored:
		return Result{Class: ClassIgnored, Source: SourcePassthrough}, nil
	case ClassNavigate:
		return d.navigation.Serve(ctx, req), nil
	case ClassStatic:
		return d.static.Serve(ctx, req), nil
	case ClassAPI:
		return d.api.Serve(ctx, req), nil
	default:
		return Result{}, fmt.Errorf("unhandled request class %d", int(class))
	}
}
