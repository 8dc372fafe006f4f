package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/recollector/auth-service/internal/utils"
)

const RequestIDHeader = "X-Request-ID"

// RequestID tags each request with a correlation id, reusing the caller's
// X-Request-ID when present, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), utils.CtxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(utils.CtxKeyRequestID).(string)
	return id
}
