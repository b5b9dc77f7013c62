package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/palletdock/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisHost   = "127.0.0.1"
	defaultRedisPort   = 6379
	defaultRedisPrefix = "pd"
	pingTimeout        = 3 * time.Second
)

// store 进程内唯一的缓存连接；client 为 nil 时所有读写都是空操作
type store struct {
	client *redis.Client
	prefix string
}

var current = &store{prefix: defaultRedisPrefix}

// InitRedis 初始化 Redis 客户端。
// 连接探测失败时返回错误并保持禁用，托盘与机器查询直接走数据库。
func InitRedis(cfg *config.RedisConfig) error {
	if current.client != nil {
		_ = current.client.Close()
	}
	current = &store{prefix: defaultRedisPrefix}
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = defaultRedisHost
	}
	port := cfg.Port
	if port <= 0 {
		port = defaultRedisPort
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping %s: %w", client.Options().Addr, err)
	}
	current = &store{client: client, prefix: prefix}
	return nil
}

// Enabled 判断缓存是否启用
func Enabled() bool {
	return current.client != nil
}

// Client 获取 Redis 客户端，未启用时返回 nil
func Client() *redis.Client {
	return current.client
}

// Prefix 当前键前缀，限流等模块与缓存共用
func Prefix() string {
	return current.prefix
}

// GetJSON 读取 JSON 缓存，未命中时 hit 为 false
func GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !Enabled() {
		return false, nil
	}
	raw, err := current.client.Get(ctx, current.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// 结构变更后的旧缓存直接丢弃
		_ = current.client.Del(ctx, current.key(key)).Err()
		return false, nil
	}
	return true, nil
}

// SetJSON 写入 JSON 缓存
func SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !Enabled() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return current.client.Set(ctx, current.key(key), payload, ttl).Err()
}

// Del 删除一个或多个缓存键
func Del(ctx context.Context, keys ...string) error {
	if !Enabled() || len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, key := range keys {
		full = append(full, current.key(key))
	}
	return current.client.Del(ctx, full...).Err()
}

func (s *store) key(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return s.prefix
	}
	return s.prefix + ":" + trimmed
}
