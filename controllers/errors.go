package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/yashrajoria/settlement-service/common/errors"
	"github.com/yashrajoria/settlement-service/services"
)

// abortWithKind attaches err for ErrorMiddleware using the status its kind
// maps to.
func abortWithKind(c *gin.Context, err error) {
	kind := services.KindOf(err)
	abort(c, kind.StatusCode(), kind.String(), publicMessage(kind, err), err)
}

func abort(c *gin.Context, status int, kind, message string, err error) {
	_ = c.Error(apperrors.New(status, message, err).WithKind(kind))
	c.Abort()
}

// publicMessage hides internal error text from callers.
func publicMessage(kind services.Kind, err error) string {
	if kind == services.KindInternal || kind == services.KindInvariant {
		return http.StatusText(http.StatusInternalServerError)
	}
	var re *services.ReconcileError
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}
