package task

import (
	"context"
	"log/slog"
	"time"

	xerrors "SheetQueue/internal/errors"
	"SheetQueue/internal/lock"
	"SheetQueue/internal/notify"
	"SheetQueue/internal/observability/alerting"
	"SheetQueue/internal/observability/metrics"
	"SheetQueue/internal/table"
	"SheetQueue/pkg/logger"
)

// 操作名，用于指标与告警。
const (
	OpNext     = "next"
	OpMarkDone = "mark_done"
	OpStats    = "stats"
)

// Service 组合存储、协调器与事件发布，对外提供队列操作。
type Service struct {
	store     table.Store
	coord     *lock.Coordinator
	publisher notify.Publisher
	columns   Columns
	alerts    alerting.Dispatcher
	metrics   *metrics.Recorder
	log       *slog.Logger
}

// Option 配置 Service。
type Option func(*Service)

// WithColumns 覆盖默认列名，空字段保持默认。
func WithColumns(cols Columns) Option {
	return func(s *Service) {
		s.columns = cols.withDefaults()
	}
}

// WithAlerting 设置告警分发器。
func WithAlerting(d alerting.Dispatcher) Option {
	return func(s *Service) {
		s.alerts = d
	}
}

// WithMetrics 设置指标记录器。
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Service) {
		s.metrics = r
	}
}

// WithLogger 替换服务日志。
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService 构造队列服务。coord 为空时使用仅进程内互斥的协调器，publisher 为空时丢弃事件。
// 列配置中完成标记与完成值不匹配时返回 INVALID_ARGUMENT。
func NewService(store table.Store, coord *lock.Coordinator, publisher notify.Publisher, opts ...Option) (*Service, error) {
	if coord == nil {
		coord = lock.NewCoordinator()
	}
	if publisher == nil {
		publisher = notify.Noop{}
	}
	s := &Service{
		store:     store,
		coord:     coord,
		publisher: publisher,
		columns:   DefaultColumns(),
		log:       logger.Named("task"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if err := s.columns.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Columns 返回当前列配置。
func (s *Service) Columns() Columns {
	return s.columns
}

// Next 重新加载表格并返回第一条未完成的行，不持有独占访问。
func (s *Service) Next(ctx context.Context, location string) (sel Selection, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, OpNext, location, start, err) }()

	if s.store == nil {
		return Selection{}, xerrors.New(xerrors.CodeInitializationFailure, "表格存储未初始化")
	}
	t, err := s.store.Load(ctx, location)
	if err != nil {
		return Selection{}, err
	}
	if err := t.Require(s.columns.ID, s.columns.Status); err != nil {
		return Selection{}, err
	}
	return Next(t, s.columns.Status, s.columns.DoneValue)
}

// MarkDone 在独占访问内完成 加载、标记、保存，然后在访问范围之外发布完成事件。
// 该行已完成时不重写文件。
func (s *Service) MarkDone(ctx context.Context, location string, id any) (comp Completion, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, OpMarkDone, location, start, err) }()

	if s.store == nil {
		return Completion{}, xerrors.New(xerrors.CodeInitializationFailure, "表格存储未初始化")
	}
	if table.Normalize(id) == "" {
		return Completion{}, xerrors.New(xerrors.CodeInvalidArgument, "id 不能为空")
	}
	// 先校验位置，避免在存储根目录之外创建锁文件。
	if r, ok := s.store.(table.Resolver); ok {
		if location, err = r.Resolve(location); err != nil {
			return Completion{}, err
		}
	}

	err = s.coord.WithExclusiveAccess(ctx, location, func(ctx context.Context) error {
		t, err := s.store.Load(ctx, location)
		if err != nil {
			return err
		}
		updated, c, err := MarkDone(t, id, s.columns)
		if err != nil {
			return err
		}
		comp = c
		if c.AlreadyDone {
			return nil
		}
		return s.store.Save(ctx, location, updated)
	})
	if err != nil {
		return Completion{}, err
	}

	logger.Audit().Info("行已标记完成",
		slog.String("location", location),
		slog.String("id", table.Normalize(id)),
		slog.Int("row", comp.Row.Index()),
		slog.Bool("already_done", comp.AlreadyDone),
	)
	evt := notify.NewEvent(location, id, comp.Row.Map(), comp.AlreadyDone)
	if perr := s.publisher.Publish(ctx, evt); perr != nil {
		s.log.Warn("发布完成事件失败",
			slog.String("location", location),
			slog.String("event_id", evt.EventID),
			slog.Any("error", perr),
		)
	}
	return comp, nil
}

// Stats 重新加载表格并统计完成情况。
func (s *Service) Stats(ctx context.Context, location string) (stats Stats, err error) {
	start := time.Now()
	defer func() { s.finish(ctx, OpStats, location, start, err) }()

	if s.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeInitializationFailure, "表格存储未初始化")
	}
	t, err := s.store.Load(ctx, location)
	if err != nil {
		return Stats{}, err
	}
	return Count(t, s.columns.Status, s.columns.DoneValue)
}

// Close 释放事件发布者。
func (s *Service) Close() error {
	if s.publisher != nil {
		return s.publisher.Close()
	}
	return nil
}

func (s *Service) finish(ctx context.Context, op, location string, start time.Time, err error) {
	s.metrics.ObserveOperation(op, time.Since(start), err)
	if err == nil {
		return
	}
	s.log.Debug("队列操作失败",
		slog.String("operation", op),
		slog.String("location", location),
		slog.String("code", string(xerrors.CodeOf(err))),
		slog.Any("error", err),
	)
	if s.alerts == nil || !xerrors.ShouldAlert(err) || ctx.Err() != nil {
		return
	}
	// 告警使用独立 context，请求被取消时仍需送达。
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if aerr := s.alerts.Notify(actx, alerting.EventFromError(op, location, err)); aerr != nil {
		s.log.Error("告警发送失败", slog.String("operation", op), slog.Any("error", aerr))
	}
}
