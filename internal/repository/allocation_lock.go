package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm"
)

// allocationMutexes 进程内按作用域划分的互斥锁
var allocationMutexes sync.Map

func allocationMutex(scope string) *sync.Mutex {
	value, _ := allocationMutexes.LoadOrStore(scope, &sync.Mutex{})
	return value.(*sync.Mutex)
}

// AllocationScope 拼接分配锁作用域，如 pallet_number:20250601
func AllocationScope(base string, parts ...string) string {
	items := make([]string, 0, len(parts)+1)
	items = append(items, strings.TrimSpace(base))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			items = append(items, part)
		}
	}
	return strings.Join(items, ":")
}

// WithAllocationLock 在分配锁内执行事务
func WithAllocationLock(ctx context.Context, db *gorm.DB, scope string, fn func(tx *gorm.DB) error) error {
	return WithAllocationLocks(ctx, db, []string{scope}, fn)
}

// WithAllocationLocks 按给定顺序持有多个作用域锁后执行事务
// 先持有进程内互斥锁，再开启事务；postgres 下额外按同一顺序获取事务级 advisory lock，跨进程串行化。
// 互斥锁须在占用连接之前全部拿到，调用方保持固定顺序（编号 -> 形状）。
func WithAllocationLocks(ctx context.Context, db *gorm.DB, scopes []string, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fmt.Errorf("allocation lock %s: nil db", strings.Join(scopes, ","))
	}
	for _, scope := range scopes {
		mu := allocationMutex(scope)
		mu.Lock()
		defer mu.Unlock()
	}

	if ctx == nil {
		ctx = context.Background()
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, scope := range scopes {
			if err := acquireAdvisoryLock(tx, scope); err != nil {
				return err
			}
		}
		return fn(tx)
	})
}

func acquireAdvisoryLock(tx *gorm.DB, scope string) error {
	switch dbDialectName(tx) {
	case "postgres", "postgresql":
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", scope).Error; err != nil {
			return fmt.Errorf("acquire advisory lock %s: %w", scope, err)
		}
	}
	return nil
}
