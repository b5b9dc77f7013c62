package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/palletdock/internal/authz"
	"github.com/palletdock/internal/config"
	"github.com/palletdock/internal/models"
	"github.com/palletdock/internal/provider"
	"github.com/palletdock/internal/repository"
	"github.com/palletdock/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type routerTestEnv struct {
	engine    *gin.Engine
	container *provider.Container
	token     string
}

func setupRouterTest(t *testing.T) *routerTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	cfg := &config.Config{
		Server:  config.ServerConfig{Mode: "debug"},
		JWT:     config.JWTConfig{SecretKey: "router-test-secret", ExpireHours: 1},
		Pallet:  config.PalletConfig{Timezone: "UTC", FactoryCode: "TSS", AssignShapeOnCreate: true},
		Metrics: config.MetricsConfig{Enabled: true},
	}
	authzService, err := authz.NewService(db)
	if err != nil {
		t.Fatalf("init authz failed: %v", err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap roles failed: %v", err)
	}

	operatorRepo := repository.NewOperatorRepository(db)
	palletRepo := repository.NewPalletRepository(db)
	systemRepo := repository.NewSystemRepository(db)
	audit := service.NewPalletAuditService(repository.NewPalletAuditLogRepository(db))
	c := &provider.Container{
		Config:          cfg,
		DB:              db,
		OperatorRepo:    operatorRepo,
		PalletRepo:      palletRepo,
		SystemRepo:      systemRepo,
		AuthzService:    authzService,
		AuthService:     service.NewAuthService(cfg, operatorRepo),
		AuditService:    audit,
		PalletService:   service.NewPalletService(db, cfg.Pallet, palletRepo, systemRepo, audit, nil),
		SystemService:   service.NewSystemService(db, cfg.Pallet, systemRepo, palletRepo, audit),
		ArtifactService: service.NewArtifactService(cfg.Pallet, palletRepo, systemRepo, nil),
	}

	operator := &models.Operator{Username: "lead", PasswordHash: "x"}
	if err := operatorRepo.Create(operator); err != nil {
		t.Fatalf("create operator failed: %v", err)
	}
	if err := authzService.SetOperatorRoles(operator.ID, []string{authz.RoleOperator}); err != nil {
		t.Fatalf("set role failed: %v", err)
	}
	token, _, err := c.AuthService.GenerateJWT(operator)
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	return &routerTestEnv{engine: SetupRouter(cfg, c), container: c, token: token}
}

type envelope struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

func (env *routerTestEnv) do(t *testing.T, method, path, body string) envelope {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+env.token)
	req.Header.Set("Accept-Language", "en-US")
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("%s %s http status %d body=%s", method, path, w.Code, w.Body.String())
	}
	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %s failed: %v", w.Body.String(), err)
	}
	return resp
}

func TestRouterPalletLifecycle(t *testing.T) {
	env := setupRouterTest(t)

	created := env.do(t, http.MethodPost, "/api/v1/admin/pallets", "")
	if created.StatusCode != 0 {
		t.Fatalf("create pallet failed: %+v", created)
	}
	var pallet service.PalletView
	if err := json.Unmarshal(created.Data, &pallet); err != nil {
		t.Fatalf("decode pallet failed: %v", err)
	}
	if !strings.HasPrefix(pallet.PalletNumber, "PALLET-") || pallet.Shape == nil {
		t.Fatalf("unexpected pallet %+v", pallet)
	}

	if resp := env.do(t, http.MethodPost, "/api/v1/admin/systems", `{"service_tag":"abc123","ppid":"P1"}`); resp.StatusCode != 0 {
		t.Fatalf("upsert system failed: %+v", resp)
	}
	assign := fmt.Sprintf(`{"service_tag":"ABC123","pallet_number":"%s"}`, pallet.PalletNumber)
	if resp := env.do(t, http.MethodPost, "/api/v1/admin/pallets/assign", assign); resp.StatusCode != 0 {
		t.Fatalf("assign failed: %+v", resp)
	}

	release := env.do(t, http.MethodPost, "/api/v1/admin/pallets/"+pallet.PalletNumber+"/release", "")
	if release.StatusCode != 412 {
		t.Fatalf("release without doa want 412 got %+v", release)
	}
	if release.Msg != "missing DOA number for ABC123" {
		t.Fatalf("unexpected release message %q", release.Msg)
	}
	var detail struct {
		MissingServiceTags []string `json:"missing_service_tags"`
	}
	if err := json.Unmarshal(release.Data, &detail); err != nil {
		t.Fatalf("decode release data failed: %v", err)
	}
	if len(detail.MissingServiceTags) != 1 || detail.MissingServiceTags[0] != "ABC123" {
		t.Fatalf("unexpected missing tags %v", detail.MissingServiceTags)
	}

	if resp := env.do(t, http.MethodPut, "/api/v1/admin/systems/ABC123/doa", `{"doa_number":"DOA-77"}`); resp.StatusCode != 0 {
		t.Fatalf("set doa failed: %+v", resp)
	}
	if resp := env.do(t, http.MethodPost, "/api/v1/admin/pallets/"+pallet.PalletNumber+"/release", ""); resp.StatusCode != 0 {
		t.Fatalf("release failed: %+v", resp)
	}

	// operator 角色没有删除权限
	if resp := env.do(t, http.MethodDelete, "/api/v1/admin/pallets/"+pallet.PalletNumber, ""); resp.StatusCode != 403 {
		t.Fatalf("delete by operator want 403 got %+v", resp)
	}
	if resp := env.do(t, http.MethodPut, "/api/v1/admin/pallets/"+pallet.PalletNumber+"/lock", `{"locked":true}`); resp.StatusCode != 404 {
		t.Fatalf("lock released pallet want 404 got %+v", resp)
	}
}

func TestRouterMoveConflict(t *testing.T) {
	env := setupRouterTest(t)
	ctx := context.Background()
	actor := service.Actor{OperatorID: 1, Username: "lead"}
	from, err := env.container.PalletService.Create(ctx, actor, service.CreatePalletInput{})
	if err != nil {
		t.Fatalf("create pallet failed: %v", err)
	}
	to, err := env.container.PalletService.Create(ctx, actor, service.CreatePalletInput{})
	if err != nil {
		t.Fatalf("create pallet failed: %v", err)
	}
	for _, tag := range []string{"AAA111", "BBB222"} {
		if _, _, err := env.container.SystemService.UpsertSystem(ctx, actor, service.UpsertSystemInput{ServiceTag: tag}); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}
	if _, err := env.container.PalletService.AssignSystem(ctx, actor, service.AssignSystemInput{ServiceTag: "AAA111", PalletNumber: from.PalletNumber}); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	zero := 0
	if _, err := env.container.PalletService.AssignSystem(ctx, actor, service.AssignSystemInput{ServiceTag: "BBB222", PalletNumber: to.PalletNumber, Slot: &zero}); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	body := fmt.Sprintf(`{"service_tag":"AAA111","from_pallet_number":"%s","to_pallet_number":"%s","to_slot":0}`, from.PalletNumber, to.PalletNumber)
	if resp := env.do(t, http.MethodPost, "/api/v1/admin/pallets/move", body); resp.StatusCode != 409 {
		t.Fatalf("move into occupied slot want 409 got %+v", resp)
	}
	body = fmt.Sprintf(`{"service_tag":"AAA111","from_pallet_number":"%s","to_pallet_number":"%s"}`, from.PalletNumber, to.PalletNumber)
	if resp := env.do(t, http.MethodPost, "/api/v1/admin/pallets/move", body); resp.StatusCode != 0 {
		t.Fatalf("move failed: %+v", resp)
	}
}

func TestRouterPublicAndHealth(t *testing.T) {
	env := setupRouterTest(t)

	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("health failed: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	env.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/public/pallets/PALLET-20990101-001", nil))
	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("unknown pallet want 404 got %+v", resp)
	}

	w = httptest.NewRecorder()
	env.engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/admin/pallets", nil))
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("anonymous mutation want 401 got %+v", resp)
	}

	w = httptest.NewRecorder()
	env.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics endpoint want 200 got %d", w.Code)
	}
}

func TestBuildPermissionCatalog(t *testing.T) {
	env := setupRouterTest(t)
	items := buildPermissionCatalog(env.engine)
	seen := make(map[string]string, len(items))
	for _, item := range items {
		seen[item.Permission] = item.Module
	}
	if module, ok := seen["POST:/admin/pallets/:number/release"]; !ok || module != "pallets" {
		t.Fatalf("release permission missing or wrong module: %v", seen)
	}
	if _, ok := seen["POST:/admin/login"]; ok {
		t.Fatalf("login must not be part of the catalog")
	}
}
