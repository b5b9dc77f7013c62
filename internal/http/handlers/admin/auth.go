package admin

import (
	"errors"
	"time"

	"github.com/palletdock/internal/authz"
	"github.com/palletdock/internal/cache"
	"github.com/palletdock/internal/http/response"
	"github.com/palletdock/internal/i18n"
	"github.com/palletdock/internal/logger"
	"github.com/palletdock/internal/service"

	"github.com/gin-gonic/gin"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string                 `json:"token"`
	Operator  map[string]interface{} `json:"operator"`
	ExpiresAt string                 `json:"expires_at"`
}

// Login 操作员登录
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	operator, token, expiresAt, err := h.AuthService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			requestLog(c).Warnw("operator_login_invalid", "username", req.Username, "client_ip", c.ClientIP())
			respondError(c, response.CodeUnauthorized, "error.login_invalid", nil)
			return
		}
		respondError(c, response.CodeInternal, "error.login_failed", err)
		return
	}
	response.Success(c, LoginResponse{
		Token: token,
		Operator: map[string]interface{}{
			"id":           operator.ID,
			"username":     operator.Username,
			"display_name": operator.DisplayName,
			"is_super":     operator.IsSuper,
		},
		ExpiresAt: expiresAt.Format(time.RFC3339),
	})
}

// GetMe 当前操作员与权限快照
func (h *Handler) GetMe(c *gin.Context) {
	operatorID, ok := getOperatorID(c)
	if !ok {
		return
	}

	roles, err := h.AuthzService.GetOperatorRoles(operatorID)
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	policies, err := h.AuthzService.GetOperatorPolicies(operatorID)
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}

	response.Success(c, gin.H{
		"operator_id": operatorID,
		"username":    c.GetString("username"),
		"is_super":    currentIsSuper(c),
		"roles":       roles,
		"policies":    policies,
	})
}

// UpdatePasswordRequest 修改密码请求
type UpdatePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// UpdatePassword 修改当前操作员密码
func (h *Handler) UpdatePassword(c *gin.Context) {
	operatorID, ok := getOperatorID(c)
	if !ok {
		return
	}

	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	if err := h.AuthService.ChangePassword(c.Request.Context(), operatorID, req.OldPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPassword):
			respondError(c, response.CodeBadRequest, "error.password_invalid", nil)
		case errors.Is(err, service.ErrWeakPassword):
			var policyErr *service.PasswordPolicyError
			if errors.As(err, &policyErr) {
				msg := i18n.Sprintf(i18n.ResolveLocale(c), policyErr.Key, policyErr.Args...)
				respondErrorWithMsg(c, response.CodeBadRequest, msg, nil)
				return
			}
			respondError(c, response.CodeBadRequest, "error.password_weak", nil)
		case errors.Is(err, service.ErrOperatorNotFound):
			respondError(c, response.CodeNotFound, "error.operator_not_found", nil)
		default:
			respondError(c, response.CodeInternal, "error.save_failed", err)
		}
		return
	}

	msg := i18n.T(i18n.ResolveLocale(c), "success.password_changed")
	response.SuccessWithMsg(c, msg, nil)
}

// ListOperators 操作员列表（含角色）
func (h *Handler) ListOperators(c *gin.Context) {
	operators, err := h.OperatorRepo.List()
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	items := make([]gin.H, 0, len(operators))
	for _, operator := range operators {
		roles, err := h.AuthzService.GetOperatorRoles(operator.ID)
		if err != nil {
			respondError(c, response.CodeInternal, "error.fetch_failed", err)
			return
		}
		items = append(items, gin.H{
			"id":            operator.ID,
			"username":      operator.Username,
			"display_name":  operator.DisplayName,
			"is_super":      operator.IsSuper,
			"last_login_at": operator.LastLoginAt,
			"roles":         roles,
		})
	}
	response.Success(c, items)
}

type setOperatorRolesRequest struct {
	Roles []string `json:"roles"`
}

// SetOperatorRoles 设置操作员角色（覆盖）
func (h *Handler) SetOperatorRoles(c *gin.Context) {
	targetID, ok := parseIDParam(c, "error.operator_id_invalid")
	if !ok {
		return
	}
	operator, err := h.OperatorRepo.GetByID(targetID)
	if err != nil {
		respondError(c, response.CodeInternal, "error.save_failed", err)
		return
	}
	if operator == nil {
		respondError(c, response.CodeNotFound, "error.operator_not_found", nil)
		return
	}

	var req setOperatorRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	for _, role := range req.Roles {
		if _, err := authz.NormalizeRole(role); err != nil {
			respondError(c, response.CodeBadRequest, "error.role_invalid", nil)
			return
		}
	}

	if err := h.AuthzService.SetOperatorRoles(targetID, req.Roles); err != nil {
		respondError(c, response.CodeInternal, "error.save_failed", err)
		return
	}
	if err := cache.DelOperatorAuthState(c.Request.Context(), targetID); err != nil {
		requestLog(c).Warnw("operator_auth_state_invalidate_failed", "operator_id", targetID, "error", err)
	}

	actor := currentActor(c)
	logger.Infow("operator_roles_updated",
		"operator_id", actor.OperatorID,
		"target_operator_id", targetID,
		"target_username", operator.Username,
		"roles", req.Roles,
		"request_id", actor.RequestID,
	)

	roles, err := h.AuthzService.GetOperatorRoles(targetID)
	if err != nil {
		respondError(c, response.CodeInternal, "error.fetch_failed", err)
		return
	}
	response.Success(c, gin.H{"operator_id": targetID, "roles": roles})
}
