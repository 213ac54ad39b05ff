// Package notify 在行被标记完成后向下游广播完成事件。
// 发布是尽力而为的：失败只记录日志，不会回滚已经写入表格的结果。
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "SheetQueue/internal/errors"
)

// Event 描述一次完成标记。
type Event struct {
	EventID     string         `json:"event_id"`
	Location    string         `json:"location"`
	ID          any            `json:"id"`
	Row         map[string]any `json:"row"`
	AlreadyDone bool           `json:"already_done"`
	CompletedAt time.Time      `json:"completed_at"`
}

// NewEvent 生成带有唯一 ID 与 UTC 时间戳的事件。
func NewEvent(location string, id any, row map[string]any, alreadyDone bool) Event {
	return Event{
		EventID:     uuid.NewString(),
		Location:    location,
		ID:          id,
		Row:         row,
		AlreadyDone: alreadyDone,
		CompletedAt: time.Now().UTC(),
	}
}

// Publisher 负责投递完成事件。
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Noop 丢弃所有事件。
type Noop struct{}

// Publish 实现 Publisher。
func (Noop) Publish(context.Context, Event) error { return nil }

// Close 实现 Publisher。
func (Noop) Close() error { return nil }

// Driver 名称。
const (
	DriverNone     = "none"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverRabbitMQ = "rabbitmq"
)

// Config 选择事件驱动及其连接参数。
type Config struct {
	Driver       string         `mapstructure:"driver" yaml:"driver"`
	MemoryBuffer int            `mapstructure:"memory_buffer" yaml:"memory_buffer"`
	Redis        RedisConfig    `mapstructure:"redis" yaml:"redis"`
	RabbitMQ     RabbitMQConfig `mapstructure:"rabbitmq" yaml:"rabbitmq"`
}

// New 根据配置创建发布者。
func New(cfg Config) (Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverNone:
		return Noop{}, nil
	case DriverMemory:
		return NewMemory(cfg.MemoryBuffer), nil
	case DriverRedis:
		return NewRedis(cfg.Redis)
	case DriverRabbitMQ:
		return NewRabbitMQ(cfg.RabbitMQ)
	default:
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "不支持的事件驱动: %s", cfg.Driver)
	}
}
