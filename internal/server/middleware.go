package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/iskodirajga/sauce-hipchat-service/internal/hipchat"
	"github.com/iskodirajga/sauce-hipchat-service/internal/logx"
	"github.com/iskodirajga/sauce-hipchat-service/internal/settings"
)

type contextKey string

const authContextKey contextKey = "request_auth"

// RequestAuth is what the authenticate middleware attaches to the
// request context: the verified tenant's installation record plus the
// request's origin identity.
type RequestAuth struct {
	ClientInfo hipchat.ClientInfo
	Identity   hipchat.Identity
}

func authFromContext(ctx context.Context) (RequestAuth, bool) {
	a, ok := ctx.Value(authContextKey).(RequestAuth)
	return a, ok
}

// authenticate verifies the platform's Connect JWT and loads the
// issuing tenant's client info into the request context. Requests
// without a valid token get 401.
func (s *Server) authenticate(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		var ci hipchat.ClientInfo
		identity, err := hipchat.VerifyToken(token, func(clientKey string) (string, error) {
			if err := settings.GetJSON(r.Context(), s.store, settings.ClientInfoName, clientKey, &ci); err != nil {
				return "", err
			}
			return ci.OauthSecret, nil
		})
		if err != nil {
			s.log.Debug("request auth failed", logx.String("path", r.URL.Path), logx.Err(err))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), authContextKey, RequestAuth{
			ClientInfo: ci,
			Identity:   identity,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tokenFromRequest pulls the Connect JWT from the places the platform
// puts it: the signed_request query parameter for iframe loads, or the
// Authorization header for webhooks.
func tokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("signed_request"); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	for _, scheme := range []string{"JWT ", "Bearer "} {
		if strings.HasPrefix(auth, scheme) {
			return strings.TrimSpace(strings.TrimPrefix(auth, scheme))
		}
	}
	return ""
}

// cors allows the platform's client-side glance fetches.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", sw.status),
			logx.Duration("took", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
