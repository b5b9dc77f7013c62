package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/palletdock/internal/config"
	"github.com/palletdock/internal/constants"
)

// ErrObjectNotFound 对象不存在
var ErrObjectNotFound = errors.New("object not found")

// Store 产物存储接口
type Store interface {
	Driver() string
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// New 根据配置创建存储
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", constants.StorageDriverLocal:
		return NewLocalStore(cfg.LocalDir)
	case constants.StorageDriverS3:
		return NewS3Store(ctx, S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// LabelKey 标签对象键
func LabelKey(palletNumber, serviceTag string) string {
	return path.Join("labels", safeSegment(palletNumber), safeSegment(serviceTag)+".pdf")
}

// ManifestKey 发运清单对象键
func ManifestKey(palletNumber string) string {
	return path.Join("manifests", safeSegment(palletNumber)+".pdf")
}

// NormalizeKey 校验并规范化对象键，拒绝越级路径
func NormalizeKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", errors.New("empty object key")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return cleaned, nil
}

func safeSegment(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, value)
}
