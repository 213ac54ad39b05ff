package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig 描述 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL        string `mapstructure:"url" yaml:"url"`
	Queue      string `mapstructure:"queue" yaml:"queue"`
	Durable    bool   `mapstructure:"durable" yaml:"durable"`
	AutoDelete bool   `mapstructure:"auto_delete" yaml:"auto_delete"`
}

// RabbitMQ 通过默认交换机把事件投递到指定队列。
type RabbitMQ struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRabbitMQ 建立连接并声明队列。
func NewRabbitMQ(cfg RabbitMQConfig) (*RabbitMQ, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "sheetqueue.completions"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	return &RabbitMQ{conn: conn, ch: ch, queue: queue}, nil
}

// Publish 实现 Publisher。amqp channel 不是并发安全的，发布时加锁。
func (q *RabbitMQ) Publish(ctx context.Context, evt Event) error {
	if q == nil || q.ch == nil {
		return errors.New("RabbitMQ 发布者未初始化")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("编码事件失败: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    evt.EventID,
		Timestamp:    evt.CompletedAt,
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
}

// Close 关闭 RabbitMQ 连接。
func (q *RabbitMQ) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
