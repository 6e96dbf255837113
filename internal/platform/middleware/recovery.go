package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

const stackSize = 8 << 10

// Recovery turns a handler panic into an internal error. Any transaction the
// handler held open has already been rolled back by the time it returns.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				stack := make([]byte, stackSize)
				stack = stack[:runtime.Stack(stack, false)]

				evt := logger.Error().
					Str("request_id", requestIDOf(c)).
					Str("method", c.Request().Method).
					Str("route", c.Path()).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", stack)
				if actor, ok := auth.ActorFromContext(c.Request().Context()); ok {
					evt = evt.Str("user_id", actor.UserID.String()).Str("role", string(actor.Role))
				}
				evt.Msg("panic recovered")

				err = apperr.Internal("handler panic", fmt.Errorf("%v", r))
			}()
			return next(c)
		}
	}
}

func requestIDOf(c echo.Context) string {
	rid, _ := c.Get("request_id").(string)
	return rid
}
