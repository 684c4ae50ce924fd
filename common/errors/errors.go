package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error is the HTTP-facing error rendered by ErrorMiddleware.
type Error struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code int, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithKind returns a copy of e tagged with a machine-readable kind.
func (e *Error) WithKind(kind string) *Error {
	cp := *e
	cp.Kind = kind
	return &cp
}

var ErrInternal = New(http.StatusInternalServerError, "Internal server error", nil)

// ErrorMiddleware renders the last error attached with c.Error. Errors that
// are not *Error become a 500 without leaking their text.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		var appErr *Error
		if !errors.As(err, &appErr) {
			appErr = New(http.StatusInternalServerError, ErrInternal.Message, err)
		}
		c.AbortWithStatusJSON(appErr.Code, appErr)
	}
}
