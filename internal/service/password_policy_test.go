package service

import (
	"errors"
	"testing"

	"github.com/palletdock/internal/config"
)

func TestValidatePassword(t *testing.T) {
	policy := config.PasswordPolicyConfig{MinLength: 8, RequireUpper: true, RequireLower: true, RequireNumber: true}
	cases := []struct {
		name     string
		username string
		password string
		key      string
	}{
		{"too short", "dock-lead", "Ab1", "error.password_min_length"},
		{"missing upper", "dock-lead", "pallet2025", "error.password_require_upper"},
		{"missing number", "dock-lead", "PalletDock", "error.password_require_number"},
		{"contains username", "Dock-Lead", "DOCK-lead-2025x", "error.password_contains_user"},
		{"short username ignored", "ab", "Abcdef123", ""},
		{"ok", "dock-lead", "Pallet-2025", ""},
	}
	for _, tc := range cases {
		err := validatePassword(policy, tc.username, tc.password)
		if tc.key == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		var policyErr *PasswordPolicyError
		if !errors.As(err, &policyErr) || policyErr.Key != tc.key {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.key, err)
		}
		if !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("%s: policy error should match ErrWeakPassword", tc.name)
		}
	}
}

func TestValidatePasswordMinLengthArgs(t *testing.T) {
	err := validatePassword(config.PasswordPolicyConfig{MinLength: 10}, "", "short")
	var policyErr *PasswordPolicyError
	if !errors.As(err, &policyErr) || len(policyErr.Args) != 1 || policyErr.Args[0] != 10 {
		t.Fatalf("unexpected error %#v", err)
	}
}
