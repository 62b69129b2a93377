package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"naming-registry/internal/domain"

	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return i
}

// caller 请求者身份（认证在网关层完成，这里只取透传的头）
type caller struct {
	User string
	Role string
}

func callerFromReq(r *http.Request) caller {
	return caller{
		User: r.Header.Get("X-User"),
		Role: r.Header.Get("X-Role"),
	}
}

// requireEditor 审批/驳回接口需要 editor 角色
func requireEditor(w http.ResponseWriter, r *http.Request) (caller, bool) {
	c := callerFromReq(r)
	if c.Role != "editor" {
		writeJSON(w, http.StatusForbidden, Fail("editor role required"))
		return c, false
	}
	return c, true
}

// writeServiceError 按错误分类映射 HTTP 状态码
// Precondition failures are the caller's data problem; illegal states mean
// the UI allowed an action it should have disabled.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	switch {
	case domain.IsPrecondition(err):
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
	case domain.IsIllegalState(err):
		logger.Error(op+" hit illegal state", zap.Error(err))
		writeJSON(w, http.StatusConflict, Fail(err.Error()))
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, Fail(err.Error()))
	case errors.Is(err, domain.ErrPendingExists):
		writeJSON(w, http.StatusConflict, Fail(err.Error()))
	default:
		logger.Error(op+" failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
	}
}
