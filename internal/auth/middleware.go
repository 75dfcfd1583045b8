package auth

import (
	"net/http"

	"go.uber.org/zap"
)

// Middleware attaches the viewer to the request context when a valid token is present.
// Requests without a valid token continue anonymously; handlers decide whether a viewer is required.
func (v *Verifier) Middleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := v.TokenFromRequest(r)
			if token == "" || !v.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			id, err := v.Verify(token)
			if err != nil {
				logger.Debug("ignoring invalid session token", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), id)))
		})
	}
}
