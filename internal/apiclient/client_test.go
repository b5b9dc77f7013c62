package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/palletdock/internal/authz"
	"github.com/palletdock/internal/config"
	"github.com/palletdock/internal/models"
	"github.com/palletdock/internal/provider"
	"github.com/palletdock/internal/reconcile"
	"github.com/palletdock/internal/repository"
	"github.com/palletdock/internal/router"
	"github.com/palletdock/internal/service"
	"github.com/palletdock/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const (
	testUsername = "dock-lead"
	testPassword = "Dock-Lead-2025"
)

type clientTestEnv struct {
	server    *httptest.Server
	container *provider.Container
	actor     service.Actor
}

func setupClientTest(t *testing.T) *clientTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:apiclient_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
		Server: config.ServerConfig{Mode: "debug"},
		JWT:    config.JWTConfig{SecretKey: "apiclient-test-secret", ExpireHours: 1},
		Pallet: config.PalletConfig{Timezone: "UTC", FactoryCode: "TSS", AssignShapeOnCreate: true},
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

	hash, err := c.AuthService.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password failed: %v", err)
	}
	operator := &models.Operator{Username: testUsername, PasswordHash: hash}
	if err := operatorRepo.Create(operator); err != nil {
		t.Fatalf("create operator failed: %v", err)
	}
	if err := authzService.SetOperatorRoles(operator.ID, []string{authz.RoleSupervisor}); err != nil {
		t.Fatalf("set role failed: %v", err)
	}

	server := httptest.NewServer(router.SetupRouter(cfg, c))
	t.Cleanup(server.Close)
	return &clientTestEnv{
		server:    server,
		container: c,
		actor:     service.Actor{OperatorID: operator.ID, Username: operator.Username},
	}
}

func (env *clientTestEnv) login(t *testing.T, pageSize int) *Client {
	t.Helper()
	client, err := New(Config{BaseURL: env.server.URL, Locale: "en-US", PageSize: pageSize})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if _, err := client.Login(context.Background(), testUsername, testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return client
}

func (env *clientTestEnv) placeSystem(t *testing.T, tag, doa, palletNumber string) {
	t.Helper()
	input := service.UpsertSystemInput{ServiceTag: tag, PPID: "PPID-" + tag, DPN: "DPN-X1"}
	if doa != "" {
		input.DOANumber = &doa
	}
	ctx := context.Background()
	if _, _, err := env.container.SystemService.UpsertSystem(ctx, env.actor, input); err != nil {
		t.Fatalf("upsert %s failed: %v", tag, err)
	}
	if _, err := env.container.PalletService.AssignSystem(ctx, env.actor, service.AssignSystemInput{
		ServiceTag:   tag,
		PalletNumber: palletNumber,
	}); err != nil {
		t.Fatalf("assign %s failed: %v", tag, err)
	}
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	for _, base := range []string{"", "   ", "not a url"} {
		if _, err := New(Config{BaseURL: base}); !errors.Is(err, ErrConfigInvalid) {
			t.Fatalf("base %q: expected ErrConfigInvalid, got %v", base, err)
		}
	}
}

func TestClientErrorsDecodeEnvelope(t *testing.T) {
	env := setupClientTest(t)
	ctx := context.Background()

	anonymous, err := New(Config{BaseURL: env.server.URL, Locale: "en-US"})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if _, err := anonymous.Login(ctx, testUsername, "wrong-password"); !IsCode(err, CodeUnauthorized) {
		t.Fatalf("expected 401 on bad password, got %v", err)
	}
	if _, err := anonymous.ListOpenPallets(ctx); !IsCode(err, CodeUnauthorized) {
		t.Fatalf("expected 401 without token, got %v", err)
	}

	client := env.login(t, 0)
	_, err = client.GetPallet(ctx, "PALLET-19990101-001")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != CodeNotFound {
		t.Fatalf("expected 404 api error, got %v", err)
	}
	if apiErr.Method != "GET" || apiErr.Message == "" {
		t.Fatalf("api error missing request context: %+v", apiErr)
	}
}

func TestListOpenPalletsPagesThroughAll(t *testing.T) {
	env := setupClientTest(t)
	client := env.login(t, 2)
	ctx := context.Background()

	created := make(map[string]bool)
	for i := 0; i < 5; i++ {
		pallet, err := client.CreatePallet(ctx)
		if err != nil {
			t.Fatalf("create pallet %d failed: %v", i, err)
		}
		if pallet.Shape == "" || pallet.Status != "open" {
			t.Fatalf("unexpected pallet %+v", pallet)
		}
		created[pallet.Number] = true
	}

	pallets, err := client.ListOpenPallets(ctx)
	if err != nil {
		t.Fatalf("list open pallets failed: %v", err)
	}
	if len(pallets) != len(created) {
		t.Fatalf("expected %d pallets, got %d", len(created), len(pallets))
	}
	for _, pallet := range pallets {
		if !created[pallet.Number] {
			t.Fatalf("unexpected pallet %s", pallet.Number)
		}
	}
}

func TestSessionSubmitAgainstServer(t *testing.T) {
	env := setupClientTest(t)
	client := env.login(t, 0)
	ctx := context.Background()

	var numbers []string
	for i := 0; i < 3; i++ {
		pallet, err := client.CreatePallet(ctx)
		if err != nil {
			t.Fatalf("create pallet failed: %v", err)
		}
		numbers = append(numbers, pallet.Number)
	}
	first, second, third := numbers[0], numbers[1], numbers[2]
	env.placeSystem(t, "AAA111", "DOA-1", first)
	env.placeSystem(t, "BBB222", "", first)
	env.placeSystem(t, "CCC333", "DOA-3", second)

	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("init store failed: %v", err)
	}
	sink, err := reconcile.NewStoreSink(store, "https://dock.example/systems/")
	if err != nil {
		t.Fatalf("init sink failed: %v", err)
	}
	session, err := reconcile.NewSession(client, reconcile.WithArtifactSink(sink))
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	if err := session.Load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if err := session.MoveSystem("CCC333", third, 2); err != nil {
		t.Fatalf("stage move failed: %v", err)
	}
	if err := session.FlagDelete(second, true); err != nil {
		t.Fatalf("flag delete failed: %v", err)
	}
	if err := session.SetDOA("BBB222", "DOA-2"); err != nil {
		t.Fatalf("stage doa failed: %v", err)
	}
	if err := session.FlagRelease(first, true); err != nil {
		t.Fatalf("flag release failed: %v", err)
	}

	// 另一工位在本地加载后向同一托盘放入一台没有 DOA 的机器
	env.placeSystem(t, "DDD444", "", first)

	result, err := session.Submit(ctx)
	var stepErr *reconcile.StepError
	if !errors.As(err, &stepErr) || stepErr.Op.Kind != reconcile.OpRelease {
		t.Fatalf("expected release step error, got %v", err)
	}
	if !IsCode(err, CodePreconditionFailed) {
		t.Fatalf("expected 412 from server, got %v", err)
	}
	if result.Count(reconcile.OpMove) != 1 || result.Count(reconcile.OpSetDOA) != 1 || result.Count(reconcile.OpDelete) != 1 {
		t.Fatalf("unexpected applied ops %+v", result.Applied)
	}
	if tags := session.MissingDOA()[first]; len(tags) != 1 || tags[0] != "DDD444" {
		t.Fatalf("expected DDD444 missing DOA, got %v", session.MissingDOA())
	}
	if result.RefreshErr != nil {
		t.Fatalf("refresh failed: %v", result.RefreshErr)
	}
	if len(result.Artifacts) != 1 || len(result.ArtifactErrors) != 0 {
		t.Fatalf("expected one label, got %v %v", result.Artifacts, result.ArtifactErrors)
	}

	baseline := session.Baseline()
	if baseline.Find(second) != nil {
		t.Fatalf("deleted pallet still in baseline")
	}
	if pallet := baseline.Find(third); pallet == nil || pallet.Slots[2] == nil || pallet.Slots[2].ServiceTag != "CCC333" {
		t.Fatalf("move not reflected in baseline: %+v", pallet)
	}
	if pallet, idx := baseline.Locate("BBB222"); pallet == nil || pallet.Slots[idx].DOANumber != "DOA-2" {
		t.Fatalf("doa not reflected in baseline")
	}
	if session.HasPendingChanges() {
		t.Fatalf("refresh should clear staged changes")
	}

	system, err := client.GetSystem(ctx, "BBB222")
	if err != nil || system.DOANumber == nil || *system.DOANumber != "DOA-2" {
		t.Fatalf("unexpected system %+v err=%v", system, err)
	}
}
