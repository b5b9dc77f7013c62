package queue

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/palletdock/internal/config"
	"github.com/palletdock/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
	// ArtifactQueue 产物生成队列名称
	ArtifactQueue = constants.QueueArtifact

	artifactMaxRetry = 5
	// 同一托盘的清单任务在保留期内只入队一次
	manifestRetention  = 10 * time.Minute
	defaultConcurrency = 10
)

// Client 产物任务的入队端；未启用队列时所有入队都是空操作
type Client struct {
	client *asynq.Client
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{}, nil
	}
	return &Client{client: asynq.NewClient(redisOpt(cfg))}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// EnqueuePalletManifest 推送发运清单生成任务，同一托盘重复发运时按任务 ID 去重
func (c *Client) EnqueuePalletManifest(ctx context.Context, payload PalletManifestPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewPalletManifestTask(payload)
	if err != nil {
		return err
	}
	base := []asynq.Option{
		asynq.TaskID("manifest:" + strings.TrimSpace(payload.PalletNumber)),
		asynq.Retention(manifestRetention),
	}
	return c.enqueue(ctx, task, append(base, opts...)...)
}

// EnqueueSystemLabels 推送运输标签生成任务
func (c *Client) EnqueueSystemLabels(ctx context.Context, payload SystemLabelsPayload, opts ...asynq.Option) error {
	if !c.Enabled() || len(payload.ServiceTags) == 0 {
		return nil
	}
	task, err := NewSystemLabelsTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, opts...)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	options := append([]asynq.Option{asynq.Queue(ArtifactQueue), asynq.MaxRetry(artifactMaxRetry)}, opts...)
	_, err := c.client.EnqueueContext(ctx, task, options...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// BuildServerConfig 生成 worker 端的连接与并发配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	concurrency := defaultConcurrency
	queues := map[string]int{DefaultQueue: 1, ArtifactQueue: 2}
	if cfg != nil {
		if cfg.Concurrency > 0 {
			concurrency = cfg.Concurrency
		}
		if len(cfg.Queues) > 0 {
			queues = cfg.Queues
		}
	}
	return redisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func redisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	opt := asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}
	if cfg == nil {
		return opt
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	opt.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	opt.Password = cfg.Password
	opt.DB = cfg.DB
	return opt
}
