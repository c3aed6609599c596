package handlers

import (
	"log/slog"
	"net/http"

	"github.com/geocoder89/devconnector/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

// FieldError is one entry of an {"errors":[...]} response. Param and
// Location are set for validation failures only.
type FieldError struct {
	Msg      string `json:"msg"`
	Param    string `json:"param,omitempty"`
	Location string `json:"location,omitempty"`
}

func RespondErrors(ctx *gin.Context, status int, errs ...FieldError) {
	ctx.JSON(status, gin.H{"errors": errs})
}

// RespondMsg writes the {"msg":...} body used for auth and lookup failures.
func RespondMsg(ctx *gin.Context, status int, msg string) {
	ctx.JSON(status, gin.H{"msg": msg})
}

func RespondBadRequest(ctx *gin.Context, msg string) {
	RespondErrors(ctx, http.StatusBadRequest, FieldError{Msg: msg})
}

func RespondNotFound(ctx *gin.Context, msg string) {
	RespondMsg(ctx, http.StatusNotFound, msg)
}

// RespondInternal logs err with the request id and answers with a generic
// message; store details never reach the client.
func RespondInternal(ctx *gin.Context, op string, err error) {
	slog.ErrorContext(ctx.Request.Context(), op+" failed",
		"err", err,
		"request_id", middlewares.RequestIDFrom(ctx),
	)
	RespondMsg(ctx, http.StatusInternalServerError, "Server Error")
}
