package middleware

import (
	"encoding/json"
	stderrors "errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/roshita-planner/pkg/errors"
	"github.com/jwalitptl/roshita-planner/pkg/httputil"
)

// ContextErrorKind holds the kind of the rendered error for the request
// logger and metrics.
const ContextErrorKind = "error_kind"

// ErrorHandler renders the last error attached with c.Error as the standard
// envelope, unless the handler already wrote a response. Failures the
// caller can fix are logged as warnings, the rest as errors.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		logger := zerolog.Ctx(c.Request.Context())
		for _, e := range c.Errors {
			kind := errors.KindOf(normalize(e.Err))
			event := logger.Error()
			if clientKind(kind) {
				event = logger.Warn()
			}
			event.
				Err(e.Err).
				Str("kind", string(kind)).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("Request error")
		}

		last := normalize(c.Errors.Last().Err)
		c.Set(ContextErrorKind, string(errors.KindOf(last)))
		if c.Writer.Written() {
			return
		}

		status, body := httputil.ErrorBody(last)
		c.JSON(status, httputil.Response{
			Success: false,
			Error:   body,
		})
	}
}

func clientKind(kind errors.Kind) bool {
	switch kind {
	case errors.KindAuthMissing, errors.KindValidation, errors.KindConflict, errors.KindNotFound:
		return true
	}
	return false
}

// normalize classifies request binding failures, which gin reports as
// foreign errors, as bad requests.
func normalize(err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	var (
		invalid   validator.ValidationErrors
		syntax    *json.SyntaxError
		unmarshal *json.UnmarshalTypeError
	)
	switch {
	case stderrors.As(err, &invalid):
		return errors.BadRequest("validation failed", err)
	case stderrors.As(err, &syntax), stderrors.As(err, &unmarshal),
		stderrors.Is(err, io.EOF), stderrors.Is(err, io.ErrUnexpectedEOF):
		return errors.BadRequest("invalid request body", err)
	}
	return err
}
