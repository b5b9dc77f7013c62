package provider

import (
	"context"

	"github.com/palletdock/internal/authz"
	"github.com/palletdock/internal/cache"
	"github.com/palletdock/internal/config"
	"github.com/palletdock/internal/logger"
	"github.com/palletdock/internal/models"
	"github.com/palletdock/internal/queue"
	"github.com/palletdock/internal/repository"
	"github.com/palletdock/internal/service"
	"github.com/palletdock/internal/storage"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	QueueClient *queue.Client
	Store       storage.Store

	// Repositories
	OperatorRepo repository.OperatorRepository
	PalletRepo   *repository.GormPalletRepository
	SystemRepo   *repository.GormSystemRepository
	AuditLogRepo *repository.GormPalletAuditLogRepository

	// Services
	AuthzService    *authz.Service
	AuthService     *service.AuthService
	AuditService    *service.PalletAuditService
	PalletService   *service.PalletService
	SystemService   *service.SystemService
	ArtifactService *service.ArtifactService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	// 产物存储不可用时托盘业务照常运行，仅标签/清单不可下载
	store, err := storage.New(context.Background(), cfg.Storage)
	if err != nil {
		logger.Errorw("provider_init_storage_failed", "driver", cfg.Storage.Driver, "error", err)
		store = nil
	}

	c := &Container{
		Config:      cfg,
		DB:          models.DB,
		QueueClient: queueClient,
		Store:       store,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := c.DB
	c.OperatorRepo = repository.NewOperatorRepository(db)
	c.PalletRepo = repository.NewPalletRepository(db)
	c.SystemRepo = repository.NewSystemRepository(db)
	c.AuditLogRepo = repository.NewPalletAuditLogRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(c.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	c.AuthService = service.NewAuthService(c.Config, c.OperatorRepo)
	c.AuditService = service.NewPalletAuditService(c.AuditLogRepo)
	c.PalletService = service.NewPalletService(c.DB, c.Config.Pallet, c.PalletRepo, c.SystemRepo, c.AuditService, c.QueueClient)
	c.SystemService = service.NewSystemService(c.DB, c.Config.Pallet, c.SystemRepo, c.PalletRepo, c.AuditService)
	c.ArtifactService = service.NewArtifactService(c.Config.Pallet, c.PalletRepo, c.SystemRepo, c.Store)
}
