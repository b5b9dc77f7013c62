package service

import (
	"strings"
	"unicode"

	"github.com/palletdock/internal/config"
)

// PasswordPolicyError 新密码不满足策略，Key/Args 用于生成本地化提示
type PasswordPolicyError struct {
	Key  string
	Args []interface{}
}

func (e *PasswordPolicyError) Error() string {
	return e.Key
}

// Is 支持 errors.Is(err, ErrWeakPassword)
func (e *PasswordPolicyError) Is(target error) bool {
	return target == ErrWeakPassword
}

type passwordClasses struct {
	upper, lower, number, special bool
}

func classifyPassword(password string) passwordClasses {
	var classes passwordClasses
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			classes.upper = true
		case unicode.IsLower(r):
			classes.lower = true
		case unicode.IsDigit(r):
			classes.number = true
		default:
			classes.special = true
		}
	}
	return classes
}

// validatePassword 校验操作员新密码；账号名（不区分大小写，至少 3 个字符）不能出现在密码中
func validatePassword(policy config.PasswordPolicyConfig, username, password string) error {
	if policy.MinLength > 0 && len([]rune(password)) < policy.MinLength {
		return &PasswordPolicyError{Key: "error.password_min_length", Args: []interface{}{policy.MinLength}}
	}

	classes := classifyPassword(password)
	checks := []struct {
		required bool
		present  bool
		key      string
	}{
		{policy.RequireUpper, classes.upper, "error.password_require_upper"},
		{policy.RequireLower, classes.lower, "error.password_require_lower"},
		{policy.RequireNumber, classes.number, "error.password_require_number"},
		{policy.RequireSpecial, classes.special, "error.password_require_special"},
	}
	for _, check := range checks {
		if check.required && !check.present {
			return &PasswordPolicyError{Key: check.key}
		}
	}

	name := strings.ToLower(strings.TrimSpace(username))
	if len([]rune(name)) >= 3 && strings.Contains(strings.ToLower(password), name) {
		return &PasswordPolicyError{Key: "error.password_contains_user"}
	}
	return nil
}
