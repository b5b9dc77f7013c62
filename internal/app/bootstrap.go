package app

import (
	"errors"
	"net"

	"github.com/palletdock/internal/config"
	"github.com/palletdock/internal/logger"
	"github.com/palletdock/internal/provider"
	"github.com/palletdock/internal/router"
	"github.com/palletdock/internal/worker"
)

// BuildRunner 按启动模式组装服务：api 只起 HTTP，worker 起产物消费者与形状补齐循环，all 两者都起
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	container := provider.NewContainer(cfg)

	var services []Service
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(listenAddr(cfg), engine))
	}
	if mode == ModeAll || mode == ModeWorker {
		background, err := backgroundServices(cfg, container, mode)
		if err != nil {
			return nil, err
		}
		services = append(services, background...)
	}

	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}
	return NewRunner(services...), nil
}

func backgroundServices(cfg *config.Config, container *provider.Container, mode string) ([]Service, error) {
	var services []Service
	if cfg.Queue.Enabled {
		workerService, err := worker.NewService(&cfg.Queue, worker.NewConsumer(container))
		if err != nil {
			return nil, err
		}
		services = append(services, workerService)
	} else {
		logger.Warnw("app_worker_skipped_queue_disabled", "mode", mode)
	}

	// 形状补齐不依赖队列
	if interval := cfg.Pallet.ShapeRepairInterval(); interval > 0 {
		loop, err := worker.NewShapeRepairLoop(container.PalletService, interval)
		if err != nil {
			return nil, err
		}
		services = append(services, loop)
	}
	return services, nil
}

func listenAddr(cfg *config.Config) string {
	return net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
}

// Run 应用启动入口
func Run(opts Options) error {
	opts, err := normalizeOptions(opts)
	if err != nil {
		return err
	}
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}
	opts.Logger.Infow("app_start", "addr", listenAddr(opts.Config), "mode", opts.Mode, "services", runner.Names())
	return RunWithOptions(runner, opts)
}
