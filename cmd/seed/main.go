package main

import (
	"context"
	"flag"
	"strings"

	"github.com/palletdock/internal/config"
	"github.com/palletdock/internal/logger"
	"github.com/palletdock/internal/models"
	"github.com/palletdock/internal/provider"
	"github.com/palletdock/internal/service"
)

func main() {
	var (
		fixturesPath string
		repairShapes bool
	)
	flag.StringVar(&fixturesPath, "fixtures", "cmd/seed/fixtures.example.yaml", "种子数据 YAML 文件")
	flag.BoolVar(&repairShapes, "repair-shapes", false, "只执行形状补齐，不写入种子数据")
	flag.Parse()

	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	c := provider.NewContainer(cfg)
	ctx := context.Background()
	actor := service.Actor{Username: "seed"}

	if repairShapes {
		result, err := c.PalletService.RepairShapes(ctx, actor)
		if err != nil {
			stdLog.Fatalf("Failed to repair shapes: %v", err)
		}
		stdLog.Printf("Shapes repaired: assigned=%d cleared=%d deduplicated=%d shapeless=%d",
			result.Assigned, result.Cleared, result.Deduplicated, result.Shapeless)
		return
	}

	fixtures, err := loadFixtures(fixturesPath)
	if err != nil {
		stdLog.Fatalf("Failed to load fixtures: %v", err)
	}

	seedOperators(c, fixtures.Operators, stdLog)
	seedSystems(ctx, c, actor, fixtures.Systems, stdLog)
	seedPallets(ctx, c, actor, fixtures.Pallets, stdLog)

	stdLog.Printf("Seed completed: operators=%d systems=%d pallets=%d",
		len(fixtures.Operators), len(fixtures.Systems), len(fixtures.Pallets))
}

type printer interface {
	Printf(format string, v ...interface{})
}

func seedOperators(c *provider.Container, operators []OperatorFixture, log printer) {
	for _, item := range operators {
		username := strings.TrimSpace(item.Username)
		existing, err := c.OperatorRepo.GetByUsername(username)
		if err != nil {
			log.Printf("Failed to load operator %s: %v", username, err)
			continue
		}
		if existing == nil {
			hash, err := c.AuthService.HashPassword(item.Password)
			if err != nil {
				log.Printf("Failed to hash password for %s: %v", username, err)
				continue
			}
			displayName := item.DisplayName
			if displayName == "" {
				displayName = username
			}
			existing = &models.Operator{Username: username, DisplayName: displayName, PasswordHash: hash}
			if err := c.OperatorRepo.Create(existing); err != nil {
				log.Printf("Failed to create operator %s: %v", username, err)
				continue
			}
			log.Printf("Created operator: %s", username)
		} else {
			log.Printf("Operator already exists: %s", username)
		}
		if len(item.Roles) == 0 {
			continue
		}
		if err := c.AuthzService.SetOperatorRoles(existing.ID, item.Roles); err != nil {
			log.Printf("Failed to set roles for %s: %v", username, err)
		}
	}
}

func seedSystems(ctx context.Context, c *provider.Container, actor service.Actor, systems []SystemFixture, log printer) {
	for _, item := range systems {
		input := service.UpsertSystemInput{
			ServiceTag:   item.ServiceTag,
			PPID:         item.PPID,
			DPN:          item.DPN,
			Config:       item.Config,
			DellCustomer: item.DellCustomer,
			Issue:        item.Issue,
			Location:     item.Location,
		}
		if doa := strings.TrimSpace(item.DOANumber); doa != "" {
			input.DOANumber = &doa
		}
		system, created, err := c.SystemService.UpsertSystem(ctx, actor, input)
		if err != nil {
			log.Printf("Failed to upsert system %s: %v", item.ServiceTag, err)
			continue
		}
		if created {
			log.Printf("Created system: %s", system.ServiceTag)
		} else {
			log.Printf("Updated system: %s", system.ServiceTag)
		}
	}
}

// seedPallets 每次执行都会新建托盘；已在其他托盘上的机器会被跳过
func seedPallets(ctx context.Context, c *provider.Container, actor service.Actor, pallets []PalletFixture, log printer) {
	for _, item := range pallets {
		pallet, err := c.PalletService.Create(ctx, actor, service.CreatePalletInput{
			FactoryCode: item.FactoryCode,
			DPN:         item.DPN,
		})
		if err != nil {
			log.Printf("Failed to create pallet: %v", err)
			continue
		}
		log.Printf("Created pallet: %s shape=%s", pallet.PalletNumber, pallet.ShapeValue())

		for _, tag := range item.Systems {
			placement, err := c.PalletService.AssignSystem(ctx, actor, service.AssignSystemInput{
				ServiceTag:   tag,
				PalletNumber: pallet.PalletNumber,
			})
			if err != nil {
				log.Printf("Skipped system %s on %s: %v", tag, pallet.PalletNumber, err)
				continue
			}
			log.Printf("Placed system %s on %s slot %d", tag, pallet.PalletNumber, placement.SlotIndex)
		}

		if item.Locked {
			if _, err := c.PalletService.SetLock(ctx, actor, pallet.PalletNumber, true); err != nil {
				log.Printf("Failed to lock pallet %s: %v", pallet.PalletNumber, err)
			}
		}
	}
}
