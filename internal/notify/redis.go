package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address  string `mapstructure:"address" yaml:"address"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Key      string `mapstructure:"key" yaml:"key"`
}

// Redis 将事件以 JSON 形式 LPUSH 到一个 list，消费者可用 BRPOP 按完成顺序读取。
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis 创建 Redis 发布者并检查连通性。
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return NewRedisWithClient(client, cfg.Key), nil
}

// NewRedisWithClient 复用已有客户端。
func NewRedisWithClient(client *redis.Client, key string) *Redis {
	if key == "" {
		key = "sheetqueue:completions"
	}
	return &Redis{client: client, key: key}
}

// Key 返回事件所在的 list 名称。
func (r *Redis) Key() string { return r.key }

// Publish 实现 Publisher。
func (r *Redis) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("编码事件失败: %w", err)
	}
	if err := r.client.LPush(ctx, r.key, payload).Err(); err != nil {
		return fmt.Errorf("Redis 发布事件失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
