package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/palletdock/internal/logger"

	"golang.org/x/crypto/bcrypt"
)

const bootstrapUsername = "dock-admin"

// BootstrapResult 首个操作员的初始化结果；GeneratedPassword 只在本次随机生成密码时有值
type BootstrapResult struct {
	Created           bool
	Username          string
	GeneratedPassword string
}

// EnsureBootstrapOperator 库中没有任何操作员时创建一个超级操作员。
// password 为空时生成随机密码，由调用方负责一次性展示。
func EnsureBootstrapOperator(username, password string) (*BootstrapResult, error) {
	var count int64
	if err := DB.Model(&Operator{}).Count(&count).Error; err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username = bootstrapUsername
	}
	result := &BootstrapResult{Username: username}
	if count > 0 {
		return result, nil
	}

	if password == "" {
		generated, err := randomPassword()
		if err != nil {
			return nil, err
		}
		password = generated
		result.GeneratedPassword = generated
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	operator := Operator{
		Username:     username,
		DisplayName:  username,
		PasswordHash: string(hash),
		IsSuper:      true,
	}
	if err := DB.Create(&operator).Error; err != nil {
		return nil, err
	}
	result.Created = true
	logger.Warnw("bootstrap_operator_created",
		"username", username,
		"password_generated", result.GeneratedPassword != "",
	)
	return result, nil
}

// randomPassword 固定前缀加 16 位十六进制
func randomPassword() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "Pd-" + hex.EncodeToString(buf), nil
}
