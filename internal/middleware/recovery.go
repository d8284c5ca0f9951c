package middleware

import (
	"net/http"
	"runtime/debug"

	internalhttputil "github.com/alfredchat/alfred/internal/httputil"
	"github.com/alfredchat/alfred/pkg/logger"
)

// Recovery turns a handler panic into a 500 and logs the stack.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.WithContext(r.Context()).WithField("panic", rec).WithField("stack", string(debug.Stack())).
					Error("Handler panicked")
				internalhttputil.WriteError(w, http.StatusInternalServerError, "An internal error occurred.")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
