package dashboard

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	pkgerr "github.com/multi-agent/run-transcript/pkg/errors"
	"github.com/multi-agent/run-transcript/pkg/logger"
)

// 统一响应辅助, 所有 handler 共用。

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": gin.H{"code": code, "message": message}})
}

func notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, gin.H{"success": false, "error": gin.H{"code": "not_found", "message": message}})
}

func conflict(c *gin.Context, code, message string) {
	c.JSON(http.StatusConflict, gin.H{"success": false, "error": gin.H{"code": code, "message": message}})
}

func unavailable(c *gin.Context, code, message string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": gin.H{"code": code, "message": message}})
}

func serverError(c *gin.Context, err error) {
	logger.FromContext(c.Request.Context()).Error("internal error", logger.Any(logger.FieldError, err))
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": gin.H{"code": "internal_error", "message": "服务器内部错误"}})
}

// failWith 按哨兵错误映射 HTTP 状态。
func failWith(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pkgerr.ErrUnknownStatus):
		conflict(c, "unknown_status", err.Error())
	case errors.Is(err, pkgerr.ErrNotAllowed), errors.Is(err, pkgerr.ErrInvalidTransition):
		conflict(c, "not_allowed", err.Error())
	case pkgerr.CodeOf(err) == pkgerr.CodeNoBackend:
		unavailable(c, "backend_unavailable", err.Error())
	case errors.Is(err, pkgerr.ErrNotFound):
		notFound(c, err.Error())
	case errors.Is(err, pkgerr.ErrInvalidInput):
		badRequest(c, "invalid_request", err.Error())
	default:
		serverError(c, err)
	}
}
