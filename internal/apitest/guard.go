package apitest

import (
	"context"
	"net/http"

	"github.com/MrEthical07/goAdmin/jwt"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the access claims the guard attached to ctx.
func ClaimsFromContext(ctx context.Context) (*jwt.AccessClaims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*jwt.AccessClaims)
	return c, ok
}

// requireAccess rejects calls without a valid, live access cookie with 401.
func (s *Server) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(AccessCookie)
		if err != nil || c.Value == "" {
			s.reject(w)
			return
		}

		claims, err := s.tokens.ParseAccess(c.Value)
		if err != nil {
			s.reject(w)
			return
		}

		s.mu.Lock()
		_, live := s.liveAccess[claims.SID]
		s.mu.Unlock()
		if !live {
			s.reject(w)
			return
		}

		s.apiCalls.Add(1)
		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) reject(w http.ResponseWriter) {
	s.authRejects.Add(1)
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
}
