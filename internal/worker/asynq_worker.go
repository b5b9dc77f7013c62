package worker

import (
	"context"
	"errors"

	"github.com/palletdock/internal/logger"
	"github.com/palletdock/internal/provider"
	"github.com/palletdock/internal/queue"
	"github.com/palletdock/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPalletManifest, c.handlePalletManifest)
	mux.HandleFunc(queue.TaskSystemLabels, c.handleSystemLabels)
}

func (c *Consumer) handlePalletManifest(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_pallet_manifest_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParsePalletManifestPayload(task.Payload())
	if err != nil {
		logger.Warnw("worker_pallet_manifest_unmarshal_failed", "error", err)
		return err
	}
	if payload.PalletNumber == "" {
		logger.Debugw("worker_pallet_manifest_skip_invalid_payload")
		return nil
	}
	if c.ArtifactService == nil {
		logger.Warnw("worker_pallet_manifest_skip_service_nil", "pallet_number", payload.PalletNumber)
		return nil
	}

	key, err := c.ArtifactService.GeneratePalletManifest(ctx, payload.PalletNumber)
	if err != nil {
		// 托盘已删除或仍为 open 时重试无意义
		if errors.Is(err, service.ErrNotFound) {
			logger.Warnw("worker_pallet_manifest_skip_not_found",
				"pallet_number", payload.PalletNumber,
				"request_id", payload.RequestID,
				"error", err,
			)
			return nil
		}
		return err
	}
	logger.Infow("worker_pallet_manifest_done",
		"pallet_number", payload.PalletNumber,
		"key", key,
		"request_id", payload.RequestID,
	)
	return nil
}

func (c *Consumer) handleSystemLabels(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_system_labels_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParseSystemLabelsPayload(task.Payload())
	if err != nil {
		logger.Warnw("worker_system_labels_unmarshal_failed", "error", err)
		return err
	}
	if len(payload.ServiceTags) == 0 {
		logger.Debugw("worker_system_labels_skip_empty", "pallet_number", payload.PalletNumber)
		return nil
	}
	if c.ArtifactService == nil {
		logger.Warnw("worker_system_labels_skip_service_nil", "pallet_number", payload.PalletNumber)
		return nil
	}

	keys, err := c.ArtifactService.GenerateSystemLabels(ctx, payload.PalletNumber, payload.ServiceTags)
	if err != nil {
		if errors.Is(err, service.ErrArtifactNotFound) {
			logger.Warnw("worker_system_labels_skip_store_unavailable", "pallet_number", payload.PalletNumber)
			return nil
		}
		return err
	}
	logger.Infow("worker_system_labels_done",
		"pallet_number", payload.PalletNumber,
		"count", len(keys),
		"request_id", payload.RequestID,
	)
	return nil
}
