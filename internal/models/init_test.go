package models

import (
	"fmt"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func setupModelsDB(t *testing.T) {
	t.Helper()
	dsn := fmt.Sprintf("file:models_%d?mode=memory&cache=shared", time.Now().UnixNano())
	if err := InitDB("sqlite", dsn, DBPoolConfig{MaxOpenConns: 1}); err != nil {
		t.Fatalf("init db failed: %v", err)
	}
	if err := AutoMigrate(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
}

func TestEnsureBootstrapOperatorGeneratesPassword(t *testing.T) {
	setupModelsDB(t)

	result, err := EnsureBootstrapOperator("", "")
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	if !result.Created || result.Username != bootstrapUsername || result.GeneratedPassword == "" {
		t.Fatalf("unexpected result %+v", result)
	}
	var operator Operator
	if err := DB.Where("username = ?", bootstrapUsername).First(&operator).Error; err != nil {
		t.Fatalf("load operator failed: %v", err)
	}
	if !operator.IsSuper {
		t.Fatalf("bootstrap operator should be super")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(operator.PasswordHash), []byte(result.GeneratedPassword)); err != nil {
		t.Fatalf("generated password does not match hash: %v", err)
	}

	again, err := EnsureBootstrapOperator("someone", "Secret-123")
	if err != nil {
		t.Fatalf("second bootstrap failed: %v", err)
	}
	if again.Created || again.GeneratedPassword != "" {
		t.Fatalf("existing operators should skip bootstrap, got %+v", again)
	}
}
