package api

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"SheetQueue/internal/observability/metrics"
	"SheetQueue/internal/task"
	"SheetQueue/pkg/logger"
)

// Queue 是 HTTP 层依赖的队列操作。
type Queue interface {
	Next(ctx context.Context, location string) (task.Selection, error)
	MarkDone(ctx context.Context, location string, id any) (task.Completion, error)
	Stats(ctx context.Context, location string) (task.Stats, error)
}

// FileOpener 以只读方式打开原始文件，用于 /get-file。
type FileOpener interface {
	Open(ctx context.Context, location string) (*os.File, fs.FileInfo, error)
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr            string
	queue           Queue
	files           FileOpener
	recorder        *metrics.Recorder
	gatherer        prometheus.Gatherer
	metricsPath     string
	shutdownTimeout time.Duration
	log             *slog.Logger
	echo            *echo.Echo
}

// Option 配置 Server。
type Option func(*Server)

// WithMetrics 记录请求指标，并在 path 非空时暴露 gatherer 的内容。
func WithMetrics(rec *metrics.Recorder, gatherer prometheus.Gatherer, path string) Option {
	return func(s *Server) {
		s.recorder = rec
		s.gatherer = gatherer
		s.metricsPath = path
	}
}

// WithShutdownTimeout 设置优雅关闭的最长等待时间。
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithLogger 替换请求日志。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, queue Queue, files FileOpener, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		queue:           queue,
		files:           files,
		shutdownTimeout: 5 * time.Second,
		log:             logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.echo = s.routes()
	return s
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	e.Use(middleware.Decompress())
	if s.recorder != nil {
		e.Use(metrics.Middleware(s.recorder))
	}
	e.Use(s.requestLog)

	e.GET("/", s.handleRoot)
	e.GET("/healthz", s.handleHealth)
	e.GET("/next-row", s.handleNextRow)
	e.POST("/mark-done", s.handleMarkDone)
	e.GET("/get-file", s.handleGetFile)
	e.GET("/stats", s.handleStats)
	if s.gatherer != nil && s.metricsPath != "" {
		e.GET(s.metricsPath, echo.WrapHandler(metrics.Handler(s.gatherer)))
	}
	return e
}

// Handler 返回完整的 HTTP 处理器，便于测试或嵌入其他服务。
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。上下文取消后优雅关闭并返回 nil。
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", slog.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.log.Info("API 服务已停止")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) requestLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		s.log.Debug("HTTP 请求",
			slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			slog.String("method", c.Request().Method),
			slog.String("route", c.Path()),
			slog.Duration("elapsed", time.Since(start)),
			slog.Bool("error", err != nil),
		)
		return err
	}
}
