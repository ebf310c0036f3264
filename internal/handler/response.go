package handler

import (
	"errors"
	"net/http"

	"github.com/Md-KamranQutub/chatify/internal/auth"
	"github.com/Md-KamranQutub/chatify/internal/service"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every JSON endpoint returns.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func success(c *gin.Context, code int, message string, data any) {
	c.JSON(code, Response{Status: "success", Message: message, Data: data})
}

func failure(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, Response{Status: "error", Message: message})
}

// fail maps err onto an HTTP status by its kind.
func fail(c *gin.Context, err error) {
	if errors.Is(err, auth.ErrMissingToken) || errors.Is(err, auth.ErrInvalidToken) {
		failure(c, http.StatusUnauthorized, err.Error())
		return
	}

	code := StatusFor(service.KindOf(err))
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	failure(c, code, service.MessageOf(err))
}

// StatusFor returns the HTTP status for a service error kind.
func StatusFor(k service.Kind) int {
	switch k {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
