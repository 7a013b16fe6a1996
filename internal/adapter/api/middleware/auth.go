package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/V4T54L/leadhook/internal/domain"
)

// PrincipalVerifier turns a bearer token into the authenticated principal.
type PrincipalVerifier interface {
	Verify(token string) (domain.Principal, error)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by RequirePrincipal. The
// zero Principal is returned for anonymous requests.
func PrincipalFromContext(ctx context.Context) domain.Principal {
	p, _ := ctx.Value(principalKey{}).(domain.Principal)
	return p
}

// RequirePrincipal is a middleware factory that rejects requests without a
// valid "Authorization: Bearer" token before any body parsing happens.
func RequirePrincipal(verifier PrincipalVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				logger.Debug("bearer token missing from request", "remote_addr", r.RemoteAddr)
				unauthorized(w)
				return
			}

			p, err := verifier.Verify(token)
			if err != nil || !p.Authenticated() {
				logger.Warn("invalid bearer token", "remote_addr", r.RemoteAddr, "error", err)
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="leadhook"`)
	http.Error(w, "Unauthorized: log in to continue", http.StatusUnauthorized)
}
