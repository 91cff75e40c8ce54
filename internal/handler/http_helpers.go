package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitlog/internal/service"
)

const (
	dateFormat = "2006-01-02"
	// userHeader 由上游网关注入，缺省为单用户模式
	userHeader  = "X-User-ID"
	defaultUser = 1
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func respondSuccess(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	raw := c.Param(key)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(id), nil
}

// currentUser 读取 X-User-ID；非法值返回 false
func currentUser(c *gin.Context) (uint, bool) {
	raw := strings.TrimSpace(c.GetHeader(userHeader))
	if raw == "" {
		return defaultUser, true
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (a *API) requireUser(c *gin.Context) (uint, bool) {
	userID, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusBadRequest, "无效的用户ID")
		return 0, false
	}
	return userID, true
}

// parseDate 在用户时区解析 2006-01-02；空值返回 fallback
func (a *API) parseDate(value string, fallback time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	return time.ParseInLocation(dateFormat, value, a.loc)
}

// dateQuery 解析查询参数中的日期，失败时直接写 400
func (a *API) dateQuery(c *gin.Context, key string, fallback time.Time) (time.Time, bool) {
	t, err := a.parseDate(c.Query(key), fallback)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的日期: "+key)
		return time.Time{}, false
	}
	return t, true
}

// handleServiceError 将 service 层的哨兵错误映射为 HTTP 状态
func (a *API) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrHabitNotFound):
		respondError(c, http.StatusNotFound, "习惯不存在")
	case errors.Is(err, service.ErrSubTaskNotFound):
		respondError(c, http.StatusNotFound, "子任务不存在")
	case errors.Is(err, service.ErrSystemNotFound):
		respondError(c, http.StatusNotFound, "系统不存在")
	case errors.Is(err, service.ErrInvalidProgressRule):
		respondError(c, http.StatusBadRequest, "完成规则配置无效")
	case errors.Is(err, service.ErrInvalidHabit):
		respondError(c, http.StatusBadRequest, "习惯配置无效")
	case errors.Is(err, service.ErrInvalidSubTask):
		respondError(c, http.StatusBadRequest, "子任务配置无效")
	case errors.Is(err, service.ErrInvalidSystem):
		respondError(c, http.StatusBadRequest, "系统配置无效")
	case errors.Is(err, service.ErrInvalidExecution):
		respondError(c, http.StatusBadRequest, "执行记录无效")
	case errors.Is(err, service.ErrSystemLocked):
		respondError(c, http.StatusConflict, "系统已锁定")
	case errors.Is(err, service.ErrToggleInFlight):
		respondError(c, http.StatusConflict, "打卡请求处理中，请稍后重试")
	default:
		a.log.Error("request failed", "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, "操作失败")
	}
}
