package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"SheetQueue/internal/api"
	"SheetQueue/internal/config"
	"SheetQueue/internal/lock"
	"SheetQueue/internal/notify"
	"SheetQueue/internal/observability/alerting"
	"SheetQueue/internal/observability/metrics"
	"SheetQueue/internal/table"
	"SheetQueue/internal/task"
	"SheetQueue/pkg/logger"
)

// app 持有按配置装配好的组件。
type app struct {
	cfg      *config.Config
	store    *table.FileStore
	service  *task.Service
	registry *prometheus.Registry
	recorder *metrics.Recorder
}

func newApp(cfg *config.Config) (*app, error) {
	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	a := &app{cfg: cfg}
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rec, err := metrics.New(cfg.Metrics.Namespace, a.registry)
		if err != nil {
			return nil, err
		}
		a.recorder = rec
	}

	publisher, err := notify.New(cfg.Notify)
	if err != nil {
		return nil, fmt.Errorf("初始化事件发布失败: %w", err)
	}

	a.store = table.NewFileStore(table.WithRootDir(cfg.Storage.RootDir))
	coord := lock.NewCoordinator(
		lock.WithCrossProcess(cfg.Lock.CrossProcess),
		lock.WithTimeout(cfg.Lock.Timeout),
		lock.WithRetryDelay(cfg.Lock.RetryDelay),
		lock.WithObserver(a.recorder.ObserveLockWait),
	)

	opts := []task.Option{
		task.WithColumns(task.Columns{
			ID:         cfg.Table.IDColumn,
			Status:     cfg.Table.StatusColumn,
			DoneValue:  cfg.Table.DoneValue,
			DoneMarker: cfg.Table.DoneMarker,
		}),
		task.WithMetrics(a.recorder),
	}
	if cfg.Alerting.Log {
		opts = append(opts, task.WithAlerting(alerting.NewFanout(&alerting.LogNotifier{})))
	}
	svc, err := task.NewService(a.store, coord, publisher, opts...)
	if err != nil {
		return nil, err
	}
	a.service = svc
	return a, nil
}

// serve 启动 API 服务；配置了独立指标地址时并行启动指标服务。
func (a *app) serve(ctx context.Context) error {
	var serverOpts []api.Option
	serverOpts = append(serverOpts, api.WithShutdownTimeout(a.cfg.Server.ShutdownTimeout))
	if a.recorder != nil {
		path := a.cfg.Metrics.Path
		if a.cfg.Metrics.Address != "" {
			path = ""
		}
		serverOpts = append(serverOpts, api.WithMetrics(a.recorder, a.registry, path))
	}
	server := api.NewServer(a.cfg.Server.Address, a.service, a.store, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })
	if a.recorder != nil && a.cfg.Metrics.Address != "" {
		g.Go(func() error { return metrics.StartServer(gctx, a.cfg.Metrics.Address, a.registry) })
	}
	logger.L().Info("sheetqueue 已启动",
		slog.String("address", a.cfg.Server.Address),
		slog.String("root_dir", a.cfg.Storage.RootDir),
		slog.String("notify", a.cfg.Notify.Driver),
	)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) close() error {
	err := a.service.Close()
	return errors.Join(err, logger.Sync())
}
