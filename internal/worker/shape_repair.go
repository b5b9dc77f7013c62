package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/palletdock/internal/logger"
	"github.com/palletdock/internal/service"
)

// ShapeRepairer 形状补齐能力
type ShapeRepairer interface {
	RepairShapes(ctx context.Context, actor service.Actor) (service.ShapeRepairResult, error)
}

// ShapeRepairLoop 定期为无形状的 open 托盘补齐形状
type ShapeRepairLoop struct {
	repairer ShapeRepairer
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewShapeRepairLoop 创建形状补齐循环
func NewShapeRepairLoop(repairer ShapeRepairer, interval time.Duration) (*ShapeRepairLoop, error) {
	if repairer == nil {
		return nil, errors.New("shape repairer is nil")
	}
	if interval <= 0 {
		return nil, errors.New("shape repair interval must be positive")
	}
	return &ShapeRepairLoop{repairer: repairer, interval: interval}, nil
}

// Name 服务名称
func (l *ShapeRepairLoop) Name() string {
	return "shape_repair"
}

// Start 启动循环，阻塞直到 ctx 结束或 Stop
func (l *ShapeRepairLoop) Start(ctx context.Context) error {
	l.mu.Lock()
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()
	defer close(done)

	l.RunOnce(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.RunOnce(ctx)
		}
	}
}

// Stop 停止循环并等待当前一轮结束
func (l *ShapeRepairLoop) Stop(ctx context.Context) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce 执行一轮补齐，失败只记录日志
func (l *ShapeRepairLoop) RunOnce(ctx context.Context) {
	result, err := l.repairer.RepairShapes(ctx, service.SystemActor)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warnw("worker_shape_repair_failed", "error", err)
		}
		return
	}
	if result.Changed() {
		logger.Infow("worker_shape_repair_done",
			"assigned", result.Assigned,
			"cleared", result.Cleared,
			"deduplicated", result.Deduplicated,
			"shapeless", result.Shapeless,
		)
	}
}
