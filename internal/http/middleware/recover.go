package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/aanand-mishra/usuarios-api/internal/apperr"
	"github.com/aanand-mishra/usuarios-api/internal/utils/response"
)

// Recover turns a panicking handler into a 500 with the generic server
// error body. http.ErrAbortHandler is re-panicked so net/http can abort
// the connection.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}

			slog.Error("panic recovered",
				slog.String("request_id", GetRequestID(r.Context())),
				slog.Any("panic", v),
				slog.String("stack", string(debug.Stack())),
			)
			response.WriteError(w, r, apperr.Server(fmt.Errorf("panic: %v", v)))
		}()

		next.ServeHTTP(w, r)
	})
}
