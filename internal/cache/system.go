package cache

import (
	"context"
	"strings"
	"time"

	"github.com/palletdock/internal/models"
)

func systemKey(serviceTag string) string {
	return "system:" + strings.ToUpper(strings.TrimSpace(serviceTag))
}

// GetSystem 获取机器缓存
func GetSystem(ctx context.Context, serviceTag string) (*models.System, bool, error) {
	if strings.TrimSpace(serviceTag) == "" {
		return nil, false, nil
	}
	var system models.System
	hit, err := GetJSON(ctx, systemKey(serviceTag), &system)
	if err != nil || !hit {
		return nil, hit, err
	}
	return &system, true, nil
}

// SetSystem 写入机器缓存
func SetSystem(ctx context.Context, system *models.System, ttl time.Duration) error {
	if system == nil || strings.TrimSpace(system.ServiceTag) == "" {
		return nil
	}
	return SetJSON(ctx, systemKey(system.ServiceTag), system, ttl)
}

// DelSystem 删除机器缓存
func DelSystem(ctx context.Context, serviceTag string) error {
	if strings.TrimSpace(serviceTag) == "" {
		return nil
	}
	return Del(ctx, systemKey(serviceTag))
}
