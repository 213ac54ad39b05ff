package lock

import (
	"context"
	stdErrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	xerrors "SheetQueue/internal/errors"
)

const lockSuffix = ".lock"

// Observer 接收等待独占访问所花费的时间，可为空。
type Observer func(location string, waited time.Duration)

// Coordinator 串行化同一位置上的读-改-写过程。
type Coordinator struct {
	mu    sync.Mutex
	slots map[string]*slot

	crossProcess bool
	retryDelay   time.Duration
	timeout      time.Duration
	observe      Observer
}

type slot struct {
	ch   chan struct{}
	refs int
}

// Option 配置 Coordinator。
type Option func(*Coordinator)

// WithCrossProcess 启用基于 flock 的跨进程互斥。
func WithCrossProcess(enabled bool) Option {
	return func(c *Coordinator) {
		c.crossProcess = enabled
	}
}

// WithRetryDelay 设置轮询文件锁的间隔。
func WithRetryDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

// WithTimeout 限制等待独占访问的最长时间，0 表示仅受调用方 context 约束。
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

// WithObserver 注册等待时间观察者。
func WithObserver(fn Observer) Option {
	return func(c *Coordinator) {
		c.observe = fn
	}
}

// NewCoordinator 创建协调器。
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		slots:      make(map[string]*slot),
		retryDelay: 25 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Key 返回位置的规范化形式：绝对路径、清理后、尽可能解析符号链接。
func Key(location string) string {
	abs, err := filepath.Abs(location)
	if err != nil {
		return filepath.Clean(location)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return filepath.Clean(abs)
}

// WithExclusiveAccess 在持有 location 独占访问权期间执行 fn。
// fn 返回错误、发生 panic 或 ctx 取消时均会释放访问权。
func (c *Coordinator) WithExclusiveAccess(ctx context.Context, location string, fn func(ctx context.Context) error) error {
	if fn == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "fn 不能为空")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	key := Key(location)
	start := time.Now()

	s := c.retain(key)
	defer c.release(key, s)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		return waitError(ctx.Err(), location)
	}
	defer func() { <-s.ch }()

	if c.crossProcess && targetExists(key) {
		fl := flock.New(key + lockSuffix)
		locked, err := fl.TryLockContext(ctx, c.retryDelay)
		switch {
		case err != nil && stdErrors.Is(err, fs.ErrNotExist):
			// 目标在检查后被移走，由 fn 报告 NOT_FOUND。
		case err != nil:
			if ctx.Err() != nil {
				return waitError(ctx.Err(), location)
			}
			return xerrors.Wrap(xerrors.CodeLockFailure, err, "获取文件锁失败",
				xerrors.WithMetadata("location", location))
		case !locked:
			return waitError(ctx.Err(), location)
		default:
			defer func() { _ = fl.Unlock() }()
		}
	}

	if c.observe != nil {
		c.observe(location, time.Since(start))
	}
	return fn(ctx)
}

// targetExists 判断被保护的文件是否存在。文件不存在时不创建锁文件，
// 避免写错的路径在磁盘上留下 .lock。
func targetExists(key string) bool {
	_, err := os.Stat(key)
	return !stdErrors.Is(err, fs.ErrNotExist)
}

// Held 返回当前被持有或有等待者的位置数量，主要用于测试。
func (c *Coordinator) Held() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

func (c *Coordinator) retain(key string) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		c.slots[key] = s
	}
	s.refs++
	return s
}

func (c *Coordinator) release(key string, s *slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(c.slots, key)
	}
}

func waitError(cause error, location string) error {
	if cause == nil {
		cause = context.DeadlineExceeded
	}
	if stdErrors.Is(cause, context.Canceled) {
		return xerrors.Wrap(xerrors.CodeLockTimeout, cause, "等待独占访问时请求被取消",
			xerrors.WithMetadata("location", location))
	}
	return xerrors.Wrap(xerrors.CodeLockTimeout, cause, "等待独占访问超时",
		xerrors.WithMetadata("location", location))
}
