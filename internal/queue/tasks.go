package queue

import (
	"encoding/json"
	"strings"

	"github.com/palletdock/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskPalletManifest 托盘发运清单生成任务
	TaskPalletManifest = constants.TaskPalletManifest
	// TaskSystemLabels 机器运输标签生成任务
	TaskSystemLabels = constants.TaskSystemLabels
)

// PalletManifestPayload 发运清单任务载荷
type PalletManifestPayload struct {
	PalletNumber string `json:"pallet_number"`
	RequestID    string `json:"request_id,omitempty"`
}

// SystemLabelsPayload 运输标签任务载荷
type SystemLabelsPayload struct {
	PalletNumber string   `json:"pallet_number"`
	ServiceTags  []string `json:"service_tags"`
	RequestID    string   `json:"request_id,omitempty"`
}

// NewPalletManifestTask 创建发运清单任务
func NewPalletManifestTask(payload PalletManifestPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPalletManifest, body), nil
}

// NewSystemLabelsTask 创建运输标签任务
func NewSystemLabelsTask(payload SystemLabelsPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSystemLabels, body), nil
}

// ParsePalletManifestPayload 解析发运清单任务载荷
func ParsePalletManifestPayload(body []byte) (PalletManifestPayload, error) {
	var payload PalletManifestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, err
	}
	payload.PalletNumber = strings.TrimSpace(payload.PalletNumber)
	return payload, nil
}

// ParseSystemLabelsPayload 解析运输标签任务载荷
func ParseSystemLabelsPayload(body []byte) (SystemLabelsPayload, error) {
	var payload SystemLabelsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, err
	}
	payload.PalletNumber = strings.TrimSpace(payload.PalletNumber)
	tags := make([]string, 0, len(payload.ServiceTags))
	for _, tag := range payload.ServiceTags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	payload.ServiceTags = tags
	return payload, nil
}
