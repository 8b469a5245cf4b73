package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// envelope is the uniform response body. Code 0 is success; non-zero codes
// name expected failure modes so clients can branch without string matching.
type envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success writes a 200 with code 0 and the payload.
func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, envelope{Code: 0, Message: "success", Data: data})
}

// Error writes the HTTP status with an application code and message.
func Error(ctx *gin.Context, status int, code int, message string) {
	ctx.JSON(status, envelope{Code: code, Message: message})
}
