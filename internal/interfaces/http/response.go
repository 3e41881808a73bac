package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/invoice-approval/internal/domain/apperror"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody carries the error kind and a human-readable message
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var statusByKind = map[apperror.Kind]int{
	apperror.KindUnauthenticated:    http.StatusUnauthorized,
	apperror.KindForbidden:          http.StatusForbidden,
	apperror.KindNotFound:           http.StatusNotFound,
	apperror.KindInvalidAction:      http.StatusBadRequest,
	apperror.KindInvalidArgument:    http.StatusBadRequest,
	apperror.KindPreconditionFailed: http.StatusPreconditionFailed,
	apperror.KindInvalidTransition:  http.StatusConflict,
}

// StatusFor maps an error kind to its HTTP status; unknown kinds are 500
func StatusFor(kind apperror.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

func errorBody(err error) (int, Response) {
	kind := apperror.KindOf(err)
	status := StatusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return status, Response{Success: false, Error: &ErrorBody{Code: string(kind), Message: msg}}
}

func abortWithError(c *gin.Context, err error) {
	status, body := errorBody(err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	abortWithError(c, apperror.Wrap(apperror.KindInvalidArgument, err, "invalid request body"))
}
