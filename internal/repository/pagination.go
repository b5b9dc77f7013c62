package repository

import (
	"github.com/palletdock/internal/constants"

	"gorm.io/gorm"
)

// countAndPaginate 统计过滤后的总数并附加 LIMIT/OFFSET；pageSize<=0 时不分页（导出报表使用）
func countAndPaginate(query *gorm.DB, page, pageSize int) (*gorm.DB, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if pageSize <= 0 {
		return query, total, nil
	}
	if pageSize > constants.MaxPageSize {
		pageSize = constants.MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	return query.Limit(pageSize).Offset((page - 1) * pageSize), total, nil
}
