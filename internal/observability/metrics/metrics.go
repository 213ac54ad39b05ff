package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	xerrors "SheetQueue/internal/errors"
)

// OutcomeOK 是成功操作的 code 标签值。
const OutcomeOK = "OK"

// Recorder 汇总队列操作与 HTTP 请求的 Prometheus 指标。nil Recorder 的所有方法都是空操作。
type Recorder struct {
	operations   *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	lockWait     prometheus.Histogram
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New 在 reg 上注册全部指标；reg 为空时使用默认注册表。
// 重复注册时复用已存在的采集器，便于同一进程内多次构造。
func New(namespace string, reg prometheus.Registerer) (*Recorder, error) {
	if namespace == "" {
		namespace = "sheetqueue"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{}
	var err error
	if r.operations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Queue operations by outcome code.",
	}, []string{"operation", "code"})); err != nil {
		return nil, err
	}
	if r.opDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Latency of queue operations including table load and save.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})); err != nil {
		return nil, err
	}
	if r.lockWait, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "lock_wait_seconds",
		Help:      "Time spent waiting for exclusive access to a table.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})); err != nil {
		return nil, err
	}
	if r.httpRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests processed.",
	}, []string{"handler", "method", "code"})); err != nil {
		return nil, err
	}
	if r.httpDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"handler", "method"})); err != nil {
		return nil, err
	}
	return r, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

// ObserveOperation 记录一次队列操作的耗时与结果码。
func (r *Recorder) ObserveOperation(operation string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	code := OutcomeOK
	if err != nil {
		code = string(xerrors.CodeOf(err))
	}
	r.operations.WithLabelValues(operation, code).Inc()
	r.opDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveLockWait 记录等待独占访问的时间。位置不作为标签，避免基数膨胀。
func (r *Recorder) ObserveLockWait(_ string, waited time.Duration) {
	if r == nil {
		return
	}
	r.lockWait.Observe(waited.Seconds())
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (r *Recorder) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// Handler exposes the gathered metrics in Prometheus text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string, g prometheus.Gatherer) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
