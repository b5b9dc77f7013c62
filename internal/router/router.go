package router

import (
	"net/http"
	"sort"
	"strings"

	"github.com/palletdock/internal/authz"
	"github.com/palletdock/internal/cache"
	"github.com/palletdock/internal/config"
	adminhandlers "github.com/palletdock/internal/http/handlers/admin"
	publichandlers "github.com/palletdock/internal/http/handlers/public"
	"github.com/palletdock/internal/http/response"
	"github.com/palletdock/internal/logger"
	"github.com/palletdock/internal/metrics"
	"github.com/palletdock/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按公开/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	loginRule := LoginRateLimitRule(cache.Prefix(), cfg.Security.LoginRateLimit)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))
	if cfg.Metrics.Enabled {
		r.Use(MetricsMiddleware())
	}

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 公开只读接口
		public := apiV1.Group("/public")
		{
			public.GET("/pallets", publicHandler.ListPallets)
			public.GET("/pallets/:number", publicHandler.GetPallet)
			public.GET("/systems/:service_tag", publicHandler.GetSystem)
		}

		admin := apiV1.Group("/admin")
		{
			admin.POST("/login", RateLimitMiddleware(cache.Client(), loginRule, KeyByIPAndJSONField("username")), adminHandler.Login)

			// 仅需登录，不做 RBAC 校验
			self := admin.Group("")
			self.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.OperatorRepo))
			{
				self.GET("/me", adminHandler.GetMe)
				self.PUT("/password", adminHandler.UpdatePassword)
			}

			authorized := admin.Group("")
			authorized.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.OperatorRepo), OperatorRBACMiddleware(c.AuthzService))
			{
				// 托盘
				authorized.GET("/pallets", adminHandler.ListPallets)
				authorized.POST("/pallets", adminHandler.CreatePallet)
				authorized.POST("/pallets/move", adminHandler.MoveSystem)
				authorized.POST("/pallets/assign", adminHandler.AssignSystem)
				authorized.POST("/pallets/shapes/repair", adminHandler.RepairShapes)
				authorized.GET("/pallets/report", adminHandler.GetOpenPalletReport)
				authorized.GET("/pallets/:number", adminHandler.GetPallet)
				authorized.DELETE("/pallets/:number", adminHandler.DeletePallet)
				authorized.PUT("/pallets/:number/lock", adminHandler.SetPalletLock)
				authorized.POST("/pallets/:number/release", adminHandler.ReleasePallet)
				authorized.GET("/pallets/:number/manifest", adminHandler.GetPalletManifest)

				// 机器
				authorized.GET("/systems", adminHandler.ListSystems)
				authorized.POST("/systems", adminHandler.UpsertSystem)
				authorized.POST("/systems/doa/import", adminHandler.ImportDOANumbers)
				authorized.GET("/systems/:service_tag", adminHandler.GetSystem)
				authorized.PUT("/systems/:service_tag/doa", adminHandler.UpdateSystemDOA)

				// 审计与权限
				authorized.GET("/audit-logs", adminHandler.ListAuditLogs)
				authorized.GET("/operators", adminHandler.ListOperators)
				authorized.PUT("/operators/:id/roles", adminHandler.SetOperatorRoles)
				authorized.GET("/authz/permissions", func(ctx *gin.Context) {
					response.Success(ctx, buildPermissionCatalog(r))
				})
			}
		}
	}

	if cfg.Metrics.Enabled {
		path := strings.TrimSpace(cfg.Metrics.Path)
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(metrics.Handler()))
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

type permissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

func buildPermissionCatalog(engine *gin.Engine) []permissionCatalogItem {
	if engine == nil {
		return []permissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]permissionCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") {
			continue
		}
		if item.Path == "/api/v1/admin/login" {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, permissionCatalogItem{
			Module:     derivePermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func derivePermissionModule(object string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(object), "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if len(segments) <= 1 {
		return segments[0]
	}
	if segments[0] != "admin" {
		return segments[0]
	}
	return segments[1]
}
