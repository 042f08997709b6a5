package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/config"
	"github.com/shellcache/shellcache/internal/control"
	"github.com/shellcache/shellcache/internal/lifecycle"
	"github.com/shellcache/shellcache/internal/proxy"
	"github.com/shellcache/shellcache/internal/revalidate"
	"github.com/shellcache/shellcache/internal/server"
	"github.com/shellcache/shellcache/internal/server/routes"
	"github.com/shellcache/shellcache/internal/strategy"
)

const shutdownTimeout = 10 * time.Second

// application 持有一次运行所需的全部组件。
type application struct {
	cfg          *config.Config
	logger       *logrus.Logger
	storage      cache.Storage
	controller   *lifecycle.Controller
	revalidator  *revalidate.Revalidator
	connectivity *revalidate.Connectivity
	app          *fiber.App
	admin        *http.Server
}

func buildApplication(cfg *config.Config, logger *logrus.Logger) (*application, error) {
	origin, err := cfg.App.OriginURL()
	if err != nil {
		return nil, err
	}

	storage, err := cache.OpenStorage(cfg.Global.StorageDriver, cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存存储失败: %w", err)
	}

	names := lifecycle.NewNames(cfg.App.Name, cfg.App.CacheVersion)
	shell := cache.NewBoundedStore(storage, names.Shell(), cfg.App.ShellMaxEntries, logger)
	apiStore := cache.NewBoundedStore(storage, names.API(), cfg.App.APIMaxEntries, logger)

	connectivity := revalidate.NewConnectivity(logger)
	client := server.NewUpstreamClient(cfg)
	fetcher := strategy.NewHTTPFetcher(client, origin, connectivity)
	hub := control.NewHub(logger)

	controller, err := lifecycle.NewController(lifecycle.Options{
		AppName:        cfg.App.Name,
		Names:          names,
		Origin:         origin,
		Storage:        storage,
		Shell:          shell,
		Fetcher:        fetcher,
		CriticalURLs:   cfg.App.CriticalURLs,
		Attempts:       cfg.App.InstallAttempts,
		InitialBackoff: cfg.Global.InitialBackoff.DurationValue(),
		SkipWaiting:    cfg.App.SkipWaiting,
		Broadcaster:    hub,
		Logger:         logger,
	})
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	dispatcher, err := strategy.NewDispatcher(strategy.Options{
		AppName:           cfg.App.Name,
		Classifier:        strategy.NewClassifier(cfg.App.APIPrefix, cfg.App.IgnorePatterns),
		Fetcher:           fetcher,
		Shell:             shell,
		API:               apiStore,
		NavigationTimeout: cfg.App.NavigationTimeout.DurationValue(),
		APITimeout:        cfg.App.APITimeout.DurationValue(),
		StaticMaxAge:      cfg.App.StaticMaxAge.DurationValue(),
		FallbackURIs:      cfg.App.FallbackURLs,
		Logger:            logger,
	})
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	revalidator, err := revalidate.New(revalidate.Options{
		Origin:      origin,
		Fetcher:     fetcher,
		Shell:       shell,
		URLs:        cfg.App.RevalidateURLs,
		Interval:    cfg.App.RevalidateInterval.DurationValue(),
		Gate:        controller,
		Broadcaster: hub,
		Logger:      logger,
	})
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	connectivity.OnReconnect(revalidator.Trigger)

	handler, err := proxy.NewHandler(proxy.Options{
		Client:     client,
		Origin:     origin,
		Dispatcher: dispatcher,
		Gate:       controller,
		AppName:    cfg.App.Name,
		CacheName:  names.Shell(),
		ListenPort: cfg.Global.ListenPort,
		Logger:     logger,
	})
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Proxy:      handler,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	channel := control.NewChannel(controller, logger)
	routes.RegisterStatusRoutes(app, controller, connectivity)

	// ControlPort 为 0 时不开放管理端口
	var admin *http.Server
	if cfg.Global.ControlPort != 0 {
		admin = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Global.ControlPort),
			Handler:           control.NewAdminHandler(channel, hub, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return &application{
		cfg:          cfg,
		logger:       logger,
		storage:      storage,
		controller:   controller,
		revalidator:  revalidator,
		connectivity: connectivity,
		app:          app,
		admin:        admin,
	}, nil
}

// serve 先启动监听（安装期间请求直接透传），再执行安装/激活与后台刷新，
// 直到 ctx 取消或任一监听失败。
func (a *application) serve(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	errCh := make(chan error, 2)

	go func() {
		a.logger.WithFields(logrus.Fields{"action": "listen", "port": a.cfg.Global.ListenPort}).Info("Fiber 服务启动")
		if err := a.app.Listen(fmt.Sprintf(":%d", a.cfg.Global.ListenPort)); err != nil {
			errCh <- fmt.Errorf("proxy listener: %w", err)
		}
	}()
	if a.admin != nil {
		go func() {
			a.logger.WithFields(logrus.Fields{"action": "listen", "port": a.cfg.Global.ControlPort}).Info("控制端口启动")
			if err := a.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("control listener: %w", err)
			}
		}()
	}

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		if err := a.controller.Start(ctx); err != nil && ctx.Err() == nil {
			a.logger.WithError(err).WithField("action", "lifecycle").Error("lifecycle_start_failed")
		}
	}()
	go func() {
		defer workers.Done()
		_ = a.revalidator.Run(ctx)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	cancel()
	workers.Wait()
	a.shutdown()
	return serveErr
}

func (a *application) shutdown() {
	a.controller.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.app.ShutdownWithContext(ctx); err != nil {
		a.logger.WithError(err).WithField("action", "shutdown").Warn("proxy_shutdown_failed")
	}
	if a.admin != nil {
		if err := a.admin.Shutdown(ctx); err != nil {
			a.logger.WithError(err).WithField("action", "shutdown").Warn("control_shutdown_failed")
		}
	}
	if err := a.storage.Close(); err != nil {
		a.logger.WithError(err).WithField("action", "shutdown").Warn("storage_close_failed")
	}
	a.logger.WithField("action", "shutdown").Info("服务已停止")
}
