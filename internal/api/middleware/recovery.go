package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/kiranshivaraju/labubify/internal/api/response"
)

// Recovery turns a panic in a handler into the generic 500 body. An
// http.ErrAbortHandler panic is re-raised so net/http can drop the
// connection as intended.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("panic recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
				"path", r.URL.Path,
				"request_id", GetRequestID(r),
			)
			response.Error(w, http.StatusInternalServerError, "Unexpected server error. Try again later.")
		}()
		next.ServeHTTP(w, r)
	})
}
