package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iota-uz/workflow-console/pkg/constants"
)

// Provide stores value under k in every request context.
func Provide(k constants.ContextKey, value any) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), k, value)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
