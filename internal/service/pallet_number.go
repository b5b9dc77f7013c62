package service

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/palletdock/internal/constants"
)

// palletNumberPattern 仅匹配纯数字序号，非法历史编号不参与取最大值
var palletNumberPattern = regexp.MustCompile(`^PALLET-(\d{8})-(\d+)$`)

// FormatPalletDay 将时间换算到站点时区后格式化为 YYYYMMDD
func FormatPalletDay(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(constants.PalletDayLayout)
}

// PalletNumberPrefix 返回某天的编号前缀，如 PALLET-20250601-
func PalletNumberPrefix(ymd string) string {
	return constants.PalletNumberPrefix + ymd + "-"
}

// NextPalletNumber 根据当天已存在的编号计算下一个编号
// 序号取最大值加一并至少补齐 3 位，超过 999 时自然增长为 4 位。
func NextPalletNumber(ymd string, existing []string) string {
	maxSerial := 0
	for _, number := range existing {
		match := palletNumberPattern.FindStringSubmatch(number)
		if match == nil || match[1] != ymd {
			continue
		}
		serial, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}
		if serial > maxSerial {
			maxSerial = serial
		}
	}
	return fmt.Sprintf("%s%03d", PalletNumberPrefix(ymd), maxSerial+1)
}

// ValidPalletNumber 校验托盘编号格式
func ValidPalletNumber(number string) bool {
	return palletNumberPattern.MatchString(number)
}
