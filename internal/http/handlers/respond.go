package handlers

import (
	"net/http"

	"github.com/geocoder89/authhub/internal/actorctx"
	"github.com/gin-gonic/gin"
)

// Envelope is the body shape of every API response.
type Envelope struct {
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Errors    interface{} `json:"errors,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	if id, ok := actorctx.RequestIDFrom(ctx.Request.Context()); ok {
		return id
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondSuccess(ctx *gin.Context, status int, message string, data interface{}) {
	ctx.JSON(status, Envelope{
		Status:    "success",
		Message:   message,
		Data:      data,
		RequestID: requestIDFrom(ctx),
	})
}

func RespondError(ctx *gin.Context, status int, message string, errs interface{}) {
	ctx.JSON(status, Envelope{
		Status:    "error",
		Message:   message,
		Errors:    errs,
		RequestID: requestIDFrom(ctx),
	})
}

func RespondBadRequest(ctx *gin.Context, message string, errs interface{}) {
	RespondError(ctx, http.StatusBadRequest, message, errs)
}

func RespondUnauthorized(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusUnauthorized, message, nil)
}

func RespondConflict(ctx *gin.Context, message string, errs interface{}) {
	RespondError(ctx, http.StatusConflict, message, errs)
}

func RespondInternal(ctx *gin.Context) {
	RespondError(ctx, http.StatusInternalServerError, "Internal server error.", nil)
}
