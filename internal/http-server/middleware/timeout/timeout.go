package timeout

import (
	"context"
	"net/http"
	"time"
)

// Timeout adds a deadline to the request context. `seconds` is the
// budget for the whole handler chain.
func Timeout(seconds time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), seconds*time.Second)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}
