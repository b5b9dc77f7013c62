package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/palletdock/internal/cache"
	"github.com/palletdock/internal/config"
	"github.com/palletdock/internal/logger"
	"github.com/palletdock/internal/models"
	"github.com/palletdock/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthService 操作员认证服务
type AuthService struct {
	cfg          *config.Config
	operatorRepo repository.OperatorRepository
}

// NewAuthService 创建认证服务实例
func NewAuthService(cfg *config.Config, operatorRepo repository.OperatorRepository) *AuthService {
	return &AuthService{
		cfg:          cfg,
		operatorRepo: operatorRepo,
	}
}

// HashPassword 使用 bcrypt 加密密码
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword 验证密码
func (s *AuthService) VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePassword 校验操作员新密码是否符合策略
func (s *AuthService) ValidatePassword(username, password string) error {
	if s == nil || s.cfg == nil {
		return nil
	}
	return validatePassword(s.cfg.Security.PasswordPolicy, username, password)
}

// JWTClaims 操作员 JWT 声明
type JWTClaims struct {
	OperatorID   uint   `json:"operator_id"`
	Username     string `json:"username"`
	TokenVersion uint64 `json:"token_version"`
	jwt.RegisteredClaims
}

// GenerateJWT 生成 JWT Token
func (s *AuthService) GenerateJWT(operator *models.Operator) (string, time.Time, error) {
	now := time.Now()
	hours := s.cfg.JWT.ExpireHours
	if hours <= 0 {
		hours = 12
	}
	expiresAt := now.Add(time.Duration(hours) * time.Hour)

	claims := JWTClaims{
		OperatorID:   operator.ID,
		Username:     operator.Username,
		TokenVersion: operator.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.JWT.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseJWT 解析 JWT Token
func (s *AuthService) ParseJWT(tokenString string) (*JWTClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// Login 操作员登录
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.Operator, string, time.Time, error) {
	operator, err := s.operatorRepo.GetByUsername(strings.TrimSpace(username))
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if operator == nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	if err := s.VerifyPassword(operator.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.GenerateJWT(operator)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	now := time.Now()
	if err := s.operatorRepo.TouchLastLogin(operator.ID, now); err != nil {
		return nil, "", time.Time{}, err
	}
	operator.LastLoginAt = &now
	if err := cache.SetOperatorAuthState(ctx, cache.BuildOperatorAuthState(operator)); err != nil {
		logger.Warnw("operator_auth_state_cache_failed", "operator_id", operator.ID, "error", err)
	}
	return operator, token, expiresAt, nil
}

// ResolveAuthState 读取操作员鉴权快照，缓存未命中时回源数据库
func (s *AuthService) ResolveAuthState(ctx context.Context, operatorID uint) (*cache.OperatorAuthState, error) {
	if state, hit, err := cache.GetOperatorAuthState(ctx, operatorID); err == nil && hit {
		return state, nil
	}
	operator, err := s.operatorRepo.GetByID(operatorID)
	if err != nil {
		return nil, err
	}
	if operator == nil {
		return nil, ErrOperatorNotFound
	}
	state := cache.BuildOperatorAuthState(operator)
	_ = cache.SetOperatorAuthState(ctx, state)
	return state, nil
}

// ChangePassword 修改操作员密码，并使已签发的 Token 失效
func (s *AuthService) ChangePassword(ctx context.Context, operatorID uint, oldPassword, newPassword string) error {
	operator, err := s.operatorRepo.GetByID(operatorID)
	if err != nil {
		return err
	}
	if operator == nil {
		return ErrOperatorNotFound
	}
	if err := s.VerifyPassword(operator.PasswordHash, oldPassword); err != nil {
		return ErrInvalidPassword
	}
	if oldPassword == newPassword {
		return &PasswordPolicyError{Key: "error.password_unchanged"}
	}
	if err := s.ValidatePassword(operator.Username, newPassword); err != nil {
		return err
	}

	hashedPassword, err := s.HashPassword(newPassword)
	if err != nil {
		return err
	}
	now := time.Now()
	operator.PasswordHash = hashedPassword
	operator.TokenVersion++
	operator.TokenInvalidBefore = &now
	if err := s.operatorRepo.Update(operator); err != nil {
		return err
	}
	if err := cache.SetOperatorAuthState(ctx, cache.BuildOperatorAuthState(operator)); err != nil {
		logger.Warnw("operator_auth_state_cache_failed", "operator_id", operator.ID, "error", err)
	}
	logger.Infow("operator_password_changed", "operator_id", operator.ID, "username", operator.Username)
	return nil
}
