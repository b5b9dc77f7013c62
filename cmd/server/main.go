package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/palletdock/internal/app"
	"github.com/palletdock/internal/config"
	"github.com/palletdock/internal/logger"
	"github.com/palletdock/internal/metrics"
	"github.com/palletdock/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	ansiReset     = "\033[0m"
	ansiBold      = "\033[1m"
	ansiDim       = "\033[2m"
	ansiGreen     = "\033[32m"
	ansiBlue      = "\033[34m"
	ansiCyan      = "\033[36m"
	ansiBrightMag = "\033[95m"
)

func main() {
	var (
		mode        string
		migrateOnly bool
	)
	flag.StringVar(&mode, "mode", app.ModeAll, "启动模式: all (默认), api, worker")
	flag.BoolVar(&migrateOnly, "migrate-only", false, "只执行数据库迁移后退出")
	flag.Parse()
	if _, err := app.ParseMode(mode); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	printStartupBanner()

	// 加载配置
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()

	if cfg.Server.Mode == "release" {
		if isWeakSecret(cfg.JWT.SecretKey) {
			stdLog.Fatalf("JWT secret 过弱或仍为默认值，请在生产环境中配置强随机密钥")
		}
	} else if isWeakSecret(cfg.JWT.SecretKey) {
		stdLog.Printf("警告: JWT secret 过弱或仍为默认值，建议在生产环境中更换")
	}

	// 初始化数据库
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}

	// 自动迁移数据库表
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("数据库迁移失败: %v", err)
	}
	if migrateOnly {
		stdLog.Printf("数据库迁移完成")
		return
	}

	bootstrapOperator(stdLog)

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := app.Run(app.Options{
		Config:  cfg,
		Logger:  logger.S(),
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Mode:    mode,
	}); err != nil {
		stdLog.Fatalf("服务运行失败: %v", err)
	}
}

// bootstrapOperator 空库时创建首个超级操作员；未指定密码时随机生成并只打印这一次
func bootstrapOperator(stdLog *log.Logger) {
	result, err := models.EnsureBootstrapOperator(
		os.Getenv("PD_BOOTSTRAP_OPERATOR_USERNAME"),
		os.Getenv("PD_BOOTSTRAP_OPERATOR_PASSWORD"),
	)
	if err != nil {
		stdLog.Printf("警告: 初始化首个操作员失败: %v", err)
		return
	}
	if result.Created && result.GeneratedPassword != "" {
		fmt.Printf(ansiBold+"首个操作员 %s 的初始密码: %s"+ansiReset+"\n", result.Username, result.GeneratedPassword)
		fmt.Println(ansiDim + "请登录后立即修改密码" + ansiReset)
	}
}

func printStartupBanner() {
	fmt.Println(ansiBrightMag + "╔══════════════════════════════════════════════════╗" + ansiReset)
	fmt.Println(ansiBrightMag + "║            palletdock API 启动中                 ║" + ansiReset)
	fmt.Println(ansiBrightMag + "╚══════════════════════════════════════════════════╝" + ansiReset)
	fmt.Println(ansiCyan + "  ┌───┬───┬───┐" + ansiReset)
	fmt.Println(ansiCyan + "  │ 0 │ 1 │ 2 │   " + ansiBold + "pallet lifecycle" + ansiReset)
	fmt.Println(ansiCyan + "  ├───┼───┼───┤" + ansiReset)
	fmt.Println(ansiCyan + "  │ 3 │ 4 │ 5 │   " + ansiGreen + "numbers · shapes · slots · release" + ansiReset)
	fmt.Println(ansiCyan + "  ├───┼───┼───┤" + ansiReset)
	fmt.Println(ansiCyan + "  │ 6 │ 7 │ 8 │   " + ansiBlue + "modes: all | api | worker" + ansiReset)
	fmt.Println(ansiCyan + "  └───┴───┴───┘" + ansiReset)
	fmt.Println(ansiDim + "--------------------------------------------------------------" + ansiReset)
}

func isWeakSecret(secret string) bool {
	if len(secret) < 32 {
		return true
	}
	normalized := strings.ToLower(secret)
	if strings.Contains(normalized, "change-me") ||
		strings.Contains(normalized, "change-in-production") ||
		strings.Contains(normalized, "your-secret-key") {
		return true
	}
	return false
}
