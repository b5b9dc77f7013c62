package i18n

var messagesZH = map[string]string{
	"error.bad_request":              "请求参数错误",
	"error.unauthorized":             "未登录或登录已过期",
	"error.forbidden":                "无权限执行该操作",
	"error.not_found":                "资源不存在",
	"error.internal":                 "服务器内部错误",
	"error.too_many_requests":        "请求过于频繁，请稍后再试",
	"error.auth_header_missing":      "缺少 Authorization 请求头",
	"error.auth_header_invalid":      "Authorization 格式错误",
	"error.token_invalid":            "登录凭证无效",
	"error.token_revoked":            "登录凭证已失效，请重新登录",
	"error.jwt_secret_missing":       "服务端未配置 JWT 密钥",
	"error.login_invalid":            "用户名或密码错误",
	"error.login_too_many":           "登录尝试过多，请在 %d 秒后重试",
	"error.password_invalid":         "原密码错误",
	"error.password_weak":            "密码强度不足",
	"error.password_min_length":      "密码长度不能少于 %d 位",
	"error.password_require_upper":   "密码需包含大写字母",
	"error.password_require_lower":   "密码需包含小写字母",
	"error.password_require_number":  "密码需包含数字",
	"error.password_require_special": "密码需包含特殊字符",
	"error.password_contains_user":   "密码不能包含账号名",
	"error.password_unchanged":       "新密码不能与原密码相同",
	"error.operator_id_invalid":      "操作员身份无效",
	"error.operator_id_type_invalid": "操作员身份类型错误",
	"error.operator_not_found":       "操作员不存在",
	"error.pallet_not_found":         "托盘不存在",
	"error.pallet_not_open":          "托盘已发运或不可用",
	"error.pallet_locked":            "托盘已锁定",
	"error.pallet_full":              "托盘已满",
	"error.pallet_not_empty":         "托盘非空，无法删除",
	"error.pallet_number_conflict":   "托盘编号冲突，请重试",
	"error.slot_occupied":            "目标槽位已被占用",
	"error.same_pallet":              "源托盘与目标托盘相同",
	"error.system_not_in_pallet":     "机器不在源托盘上",
	"error.system_already_on_pallet": "机器已在托盘上",
	"error.system_shipped":           "机器已随托盘发运",
	"error.system_not_found":         "机器不存在",
	"error.release_missing_doa":      "以下机器缺少 DOA 编号：%s",
	"error.invalid_pallet_number":    "托盘编号无效",
	"error.invalid_service_tag":      "服务标签无效",
	"error.invalid_slot":             "槽位无效",
	"error.invalid_doa":              "DOA 编号无效",
	"error.invalid_import":           "导入文件格式错误",
	"error.artifact_not_found":       "文件尚未生成",
	"error.report_failed":            "报表生成失败",
	"error.rate_limited":             "请求过于频繁，请在 %d 秒后重试",
	"error.rate_limit_unavailable":   "限流服务不可用",
	"error.login_failed":             "登录失败",
	"error.role_invalid":             "角色无效",
	"error.save_failed":              "保存失败",
	"error.fetch_failed":             "查询失败",
	"error.conflict":                 "数据已变更，请刷新后重试",
	"success.pallet_deleted":         "托盘已删除",
	"success.password_changed":       "密码已修改",
}

var messagesTW = map[string]string{
	"error.bad_request":         "請求參數錯誤",
	"error.unauthorized":        "未登入或登入已過期",
	"error.forbidden":           "無權限執行該操作",
	"error.not_found":           "資源不存在",
	"error.internal":            "伺服器內部錯誤",
	"error.too_many_requests":   "請求過於頻繁，請稍後再試",
	"error.login_invalid":       "使用者名稱或密碼錯誤",
	"error.pallet_not_found":    "棧板不存在",
	"error.pallet_not_open":     "棧板已出貨或不可用",
	"error.pallet_locked":       "棧板已鎖定",
	"error.pallet_full":         "棧板已滿",
	"error.pallet_not_empty":    "棧板非空，無法刪除",
	"error.slot_occupied":       "目標槽位已被佔用",
	"error.system_not_found":    "機器不存在",
	"error.release_missing_doa": "以下機器缺少 DOA 編號：%s",
}

var messagesEN = map[string]string{
	"error.bad_request":              "Invalid request parameters",
	"error.unauthorized":             "Not signed in or session expired",
	"error.forbidden":                "You are not allowed to perform this action",
	"error.not_found":                "Resource not found",
	"error.internal":                 "Internal server error",
	"error.too_many_requests":        "Too many requests, please try again later",
	"error.auth_header_missing":      "Authorization header is missing",
	"error.auth_header_invalid":      "Authorization header is malformed",
	"error.token_invalid":            "Invalid token",
	"error.token_revoked":            "Token has been revoked, please sign in again",
	"error.jwt_secret_missing":       "JWT secret is not configured",
	"error.login_invalid":            "Invalid username or password",
	"error.login_too_many":           "Too many login attempts, retry in %d seconds",
	"error.password_invalid":         "Current password is incorrect",
	"error.password_weak":            "Password is too weak",
	"error.password_min_length":      "Password must be at least %d characters",
	"error.password_require_upper":   "Password must contain an uppercase letter",
	"error.password_require_lower":   "Password must contain a lowercase letter",
	"error.password_require_number":  "Password must contain a digit",
	"error.password_require_special": "Password must contain a special character",
	"error.password_contains_user":   "Password must not contain the username",
	"error.password_unchanged":       "New password must differ from the current one",
	"error.operator_id_invalid":      "Invalid operator identity",
	"error.operator_id_type_invalid": "Invalid operator identity type",
	"error.operator_not_found":       "Operator not found",
	"error.pallet_not_found":         "Pallet not found",
	"error.pallet_not_open":          "Pallet is released or unavailable",
	"error.pallet_locked":            "Pallet is locked",
	"error.pallet_full":              "Pallet is full",
	"error.pallet_not_empty":         "Pallet is not empty",
	"error.pallet_number_conflict":   "Pallet number conflict, please retry",
	"error.slot_occupied":            "Destination slot is occupied",
	"error.same_pallet":              "Source and destination pallet are the same",
	"error.system_not_in_pallet":     "System is not on the source pallet",
	"error.system_already_on_pallet": "System is already on a pallet",
	"error.system_shipped":           "System has already shipped",
	"error.system_not_found":         "System not found",
	"error.release_missing_doa":      "missing DOA number for %s",
	"error.invalid_pallet_number":    "Invalid pallet number",
	"error.invalid_service_tag":      "Invalid service tag",
	"error.invalid_slot":             "Invalid slot",
	"error.invalid_doa":              "Invalid DOA number",
	"error.invalid_import":           "Invalid import file",
	"error.artifact_not_found":       "Document has not been generated yet",
	"error.report_failed":            "Failed to build report",
	"error.rate_limited":             "Too many requests, retry in %d seconds",
	"error.rate_limit_unavailable":   "Rate limiter unavailable",
	"error.login_failed":             "Login failed",
	"error.role_invalid":             "Invalid role",
	"error.save_failed":              "Save failed",
	"error.fetch_failed":             "Query failed",
	"error.conflict":                 "State changed, refresh and retry",
	"success.pallet_deleted":         "Pallet deleted",
	"success.password_changed":       "Password changed",
}
