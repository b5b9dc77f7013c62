package i18n

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

// 支持的语言
const (
	LocaleZH = "zh-CN"
	LocaleTW = "zh-TW"
	LocaleEN = "en-US"
)

// DefaultLocale 默认语言
const DefaultLocale = LocaleZH

var catalogs = map[string]map[string]string{
	LocaleZH: messagesZH,
	LocaleTW: messagesTW,
	LocaleEN: messagesEN,
}

// NormalizeLocale 将语言标签归一为支持的语言，无法识别时返回默认语言
func NormalizeLocale(raw string) string {
	tag := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.IndexAny(tag, ";,"); idx >= 0 {
		tag = strings.TrimSpace(tag[:idx])
	}
	tag = strings.ReplaceAll(tag, "_", "-")
	switch {
	case tag == "":
		return DefaultLocale
	case tag == "zh-tw" || tag == "zh-hk" || tag == "zh-hant" || strings.HasPrefix(tag, "zh-hant-"):
		return LocaleTW
	case strings.HasPrefix(tag, "zh"):
		return LocaleZH
	case strings.HasPrefix(tag, "en"):
		return LocaleEN
	default:
		return DefaultLocale
	}
}

// ResolveLocale 从请求解析语言：优先 query 参数 lang，其次 Accept-Language 的首选项
func ResolveLocale(c *gin.Context) string {
	if c == nil {
		return DefaultLocale
	}
	if lang := strings.TrimSpace(c.Query("lang")); lang != "" {
		return NormalizeLocale(lang)
	}
	header := c.GetHeader("Accept-Language")
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" || part == "*" {
			continue
		}
		return NormalizeLocale(part)
	}
	return DefaultLocale
}

// T 翻译消息键，缺失时回退默认语言，仍缺失时返回键本身
func T(locale, key string) string {
	if msg, ok := catalogs[NormalizeLocale(locale)][key]; ok {
		return msg
	}
	if msg, ok := catalogs[DefaultLocale][key]; ok {
		return msg
	}
	return key
}

// Sprintf 翻译并格式化消息
func Sprintf(locale, key string, args ...interface{}) string {
	return fmt.Sprintf(T(locale, key), args...)
}
