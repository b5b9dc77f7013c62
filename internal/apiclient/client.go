package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/palletdock/internal/constants"
	"github.com/palletdock/internal/reconcile"
)

var (
	ErrConfigInvalid   = errors.New("apiclient config invalid")
	ErrRequestFailed   = errors.New("apiclient request failed")
	ErrResponseInvalid = errors.New("apiclient response invalid")
)

const (
	defaultTimeout  = 15 * time.Second
	defaultPageSize = 100
	apiPrefix       = "/api/v1"
)

// 业务状态码，与服务端响应信封一致
const (
	CodeOK                 = 0
	CodeBadRequest         = 400
	CodeUnauthorized       = 401
	CodeForbidden          = 403
	CodeNotFound           = 404
	CodeConflict           = 409
	CodePreconditionFailed = 412
)

// Config 客户端配置
type Config struct {
	BaseURL  string
	Token    string
	Locale   string
	Timeout  time.Duration
	PageSize int
}

// Client 托盘服务 REST 客户端，实现 reconcile.Remote
type Client struct {
	baseURL    string
	token      string
	locale     string
	pageSize   int
	httpClient *http.Client
}

// APIError 业务错误（信封中 status_code 非 0）
type APIError struct {
	Code         int
	Message      string
	PalletNumber string
	MissingTags  []string
	RequestID    string
	HTTPStatus   int
	Method       string
	Path         string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %s (code %d)", e.Method, e.Path, e.Message, e.Code)
}

// MissingServiceTags 发运前置校验失败时缺少 DOA 的服务标签
func (e *APIError) MissingServiceTags() []string {
	return e.MissingTags
}

// IsCode 判断错误是否为指定业务码
func IsCode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// New 创建客户端
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: base_url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("%w: base_url is invalid", ErrConfigInvalid)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	return &Client{
		baseURL:    base,
		token:      strings.TrimSpace(cfg.Token),
		locale:     strings.TrimSpace(cfg.Locale),
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// SetToken 设置 Bearer Token
func (c *Client) SetToken(token string) {
	c.token = strings.TrimSpace(token)
}

type envelope struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
	Pagination *struct {
		Page      int   `json:"page"`
		PageSize  int   `json:"page_size"`
		Total     int64 `json:"total"`
		TotalPage int64 `json:"total_page"`
	} `json:"pagination,omitempty"`
}

type errorData struct {
	PalletNumber       string   `json:"pallet_number"`
	MissingServiceTags []string `json:"missing_service_tags"`
	RequestID          string   `json:"request_id"`
}

// Login 操作员登录，成功后客户端使用返回的 Token
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	payload := map[string]string{"username": username, "password": password}
	if _, err := c.do(ctx, http.MethodPost, "/admin/login", nil, payload, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Token) == "" {
		return "", fmt.Errorf("%w: token is empty", ErrResponseInvalid)
	}
	c.SetToken(out.Token)
	return out.Token, nil
}

type slotView struct {
	SlotIndex  int     `json:"slot_index"`
	ServiceTag string  `json:"service_tag"`
	PPID       string  `json:"ppid"`
	DPN        string  `json:"dpn"`
	DOANumber  *string `json:"doa_number"`
}

type palletView struct {
	ID           uint                                 `json:"id"`
	PalletNumber string                               `json:"pallet_number"`
	Status       string                               `json:"status"`
	Locked       bool                                 `json:"locked"`
	Shape        *string                              `json:"shape"`
	FactoryCode  string                               `json:"factory_code"`
	DPN          string                               `json:"dpn"`
	Slots        [constants.PalletSlotCount]*slotView `json:"slots"`
}

func (v palletView) toSnapshot() reconcile.Pallet {
	out := reconcile.Pallet{
		ID:          v.ID,
		Number:      v.PalletNumber,
		Status:      v.Status,
		Locked:      v.Locked,
		FactoryCode: v.FactoryCode,
		DPN:         v.DPN,
	}
	if v.Shape != nil {
		out.Shape = *v.Shape
	}
	for idx, slot := range v.Slots {
		if slot == nil || slot.ServiceTag == "" {
			continue
		}
		item := &reconcile.SlotSystem{ServiceTag: slot.ServiceTag, PPID: slot.PPID, DPN: slot.DPN}
		if slot.DOANumber != nil {
			item.DOANumber = *slot.DOANumber
		}
		out.Slots[idx] = item
	}
	return out
}

// ListPallets 分页查询托盘
func (c *Client) ListPallets(ctx context.Context, status string, page int) ([]reconcile.Pallet, int64, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(c.pageSize))
	var views []palletView
	env, err := c.do(ctx, http.MethodGet, "/admin/pallets", query, nil, &views)
	if err != nil {
		return nil, 0, err
	}
	pallets := make([]reconcile.Pallet, 0, len(views))
	for _, view := range views {
		pallets = append(pallets, view.toSnapshot())
	}
	total := int64(len(pallets))
	if env.Pagination != nil {
		total = env.Pagination.Total
	}
	return pallets, total, nil
}

// ListOpenPallets 拉取全部 open 托盘
func (c *Client) ListOpenPallets(ctx context.Context) (reconcile.Snapshot, error) {
	var all reconcile.Snapshot
	for page := 1; ; page++ {
		pallets, total, err := c.ListPallets(ctx, constants.PalletStatusOpen, page)
		if err != nil {
			return nil, err
		}
		all = append(all, pallets...)
		if len(pallets) == 0 || int64(len(all)) >= total {
			return all, nil
		}
	}
}

// GetPallet 查询单个托盘
func (c *Client) GetPallet(ctx context.Context, palletNumber string) (*reconcile.Pallet, error) {
	var view palletView
	if _, err := c.do(ctx, http.MethodGet, "/admin/pallets/"+url.PathEscape(palletNumber), nil, nil, &view); err != nil {
		return nil, err
	}
	pallet := view.toSnapshot()
	return &pallet, nil
}

// CreatePallet 新建空托盘
func (c *Client) CreatePallet(ctx context.Context) (*reconcile.Pallet, error) {
	var view palletView
	if _, err := c.do(ctx, http.MethodPost, "/admin/pallets", nil, nil, &view); err != nil {
		return nil, err
	}
	pallet := view.toSnapshot()
	return &pallet, nil
}

// GetSystem 查询机器详情
func (c *Client) GetSystem(ctx context.Context, serviceTag string) (*reconcile.System, error) {
	var system reconcile.System
	if _, err := c.do(ctx, http.MethodGet, "/admin/systems/"+url.PathEscape(serviceTag), nil, nil, &system); err != nil {
		return nil, err
	}
	return &system, nil
}

// MoveSystem 托盘间移动机器
func (c *Client) MoveSystem(ctx context.Context, req reconcile.MoveRequest) error {
	_, err := c.do(ctx, http.MethodPost, "/admin/pallets/move", nil, req, nil)
	return err
}

// UpdateSystemDOA 更新机器 DOA 编号
func (c *Client) UpdateSystemDOA(ctx context.Context, serviceTag, doaNumber string) error {
	payload := map[string]string{"doa_number": doaNumber}
	_, err := c.do(ctx, http.MethodPut, "/admin/systems/"+url.PathEscape(serviceTag)+"/doa", nil, payload, nil)
	return err
}

// DeletePallet 删除空托盘
func (c *Client) DeletePallet(ctx context.Context, palletNumber string) error {
	_, err := c.do(ctx, http.MethodDelete, "/admin/pallets/"+url.PathEscape(palletNumber), nil, nil, nil)
	return err
}

// ReleasePallet 发运托盘
func (c *Client) ReleasePallet(ctx context.Context, palletNumber string) (*reconcile.Pallet, error) {
	var view palletView
	if _, err := c.do(ctx, http.MethodPost, "/admin/pallets/"+url.PathEscape(palletNumber)+"/release", nil, nil, &view); err != nil {
		return nil, err
	}
	pallet := view.toSnapshot()
	return &pallet, nil
}

// SetPalletLock 锁定或解锁托盘
func (c *Client) SetPalletLock(ctx context.Context, palletNumber string, locked bool) (*reconcile.Pallet, error) {
	var view palletView
	payload := map[string]bool{"locked": locked}
	if _, err := c.do(ctx, http.MethodPut, "/admin/pallets/"+url.PathEscape(palletNumber)+"/lock", nil, payload, &view); err != nil {
		return nil, err
	}
	pallet := view.toSnapshot()
	return &pallet, nil
}

// DownloadManifest 下载已发运托盘的发运清单 PDF
func (c *Client) DownloadManifest(ctx context.Context, palletNumber string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/admin/pallets/"+url.PathEscape(palletNumber)+"/manifest", nil, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		_, err := c.decode(req, resp.StatusCode, body, nil)
		if err == nil {
			err = fmt.Errorf("%w: expected pdf body", ErrResponseInvalid)
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, payload interface{}) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target := c.baseURL + apiPrefix + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal request failed", ErrRequestFailed)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.locale != "" {
		req.Header.Set("Accept-Language", c.locale)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, payload, out interface{}) (*envelope, error) {
	req, err := c.newRequest(ctx, method, endpoint, query, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}
	return c.decode(req, resp.StatusCode, body, out)
}

func (c *Client) decode(req *http.Request, httpStatus int, body []byte, out interface{}) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if httpStatus < 200 || httpStatus >= 300 {
			return nil, fmt.Errorf("%w: %s %s status %d", ErrResponseInvalid, req.Method, req.URL.Path, httpStatus)
		}
		return nil, fmt.Errorf("%w: decode envelope failed", ErrResponseInvalid)
	}
	if env.StatusCode != CodeOK {
		apiErr := &APIError{
			Code:       env.StatusCode,
			Message:    env.Msg,
			HTTPStatus: httpStatus,
			Method:     req.Method,
			Path:       req.URL.Path,
		}
		var data errorData
		if len(env.Data) > 0 && json.Unmarshal(env.Data, &data) == nil {
			apiErr.PalletNumber = data.PalletNumber
			apiErr.MissingTags = data.MissingServiceTags
			apiErr.RequestID = data.RequestID
		}
		return &env, apiErr
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("%w: decode data failed", ErrResponseInvalid)
		}
	}
	return &env, nil
}

var _ reconcile.Remote = (*Client)(nil)
