package response

import (
	"net/http"

	"creditledger/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorBody 错误响应体
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// StatusOf 错误类别到 HTTP 状态码的映射
func StatusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidArgument, apperr.KindDuplicateEmail:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error 按错误类别返回状态码，Internal 只返回通用提示
func Error(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	c.JSON(StatusOf(kind), ErrorBody{
		Error: apperr.Message(err),
		Code:  kind.String(),
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, apperr.InvalidArgument(message))
}
