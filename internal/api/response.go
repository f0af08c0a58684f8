package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentis-health/discharge-orchestrator/internal/domain"
)

type Response struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Success codes
const (
	CodeSuccess = "000"
)

// Error codes
const (
	CodeBadRequest    = "400"
	CodeUnauthorized  = "401"
	CodeNotFound      = "404"
	CodeInternalError = "500"
	CodeBadGateway    = "502"
)

func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// ErrorFromDomain maps sentinel errors to HTTP responses.
func ErrorFromDomain(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		Error(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		Error(c, http.StatusUnauthorized, CodeUnauthorized, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		Error(c, http.StatusBadGateway, CodeBadGateway, err.Error())
	default:
		Error(c, http.StatusInternalServerError, CodeInternalError, "internal server error")
	}
}
