package middleware

import (
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/roshita-planner/pkg/errors"
	"github.com/jwalitptl/roshita-planner/pkg/httputil"
)

// Recovery turns a handler panic into an internal error response. A client
// that went away mid stream only gets logged; there is nobody to answer.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger := zerolog.Ctx(c.Request.Context())

			if err, ok := rec.(error); ok && clientGone(err) {
				logger.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("client disconnected")
				c.Abort()
				return
			}

			logger.Error().
				Interface("error", rec).
				Str("stack", string(debug.Stack())).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Str("client_ip", c.ClientIP()).
				Msg("Request panic recovered")

			httputil.RespondWithError(c, errors.Internal(fmt.Errorf("panic: %v", rec)))
		}()
		c.Next()
	}
}

func clientGone(err error) bool {
	var opErr *net.OpError
	if !stderrors.As(err, &opErr) {
		return false
	}
	var sysErr *os.SyscallError
	if stderrors.As(opErr.Err, &sysErr) {
		return stderrors.Is(sysErr.Err, syscall.EPIPE) || stderrors.Is(sysErr.Err, syscall.ECONNRESET)
	}
	return false
}
