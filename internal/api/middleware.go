package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/f2re/sale-photosession-bot/internal/metrics"
)

type ctxKey string

const adminIDKey ctxKey = "admin_id"

// instrument records request count and latency per chi route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(m.Code)).Inc()
		metrics.HTTPResponseTime.WithLabelValues(r.Method, route).Observe(m.Duration.Seconds())

		if m.Code >= 500 {
			slog.Warn("request failed",
				"method", r.Method,
				"route", route,
				"status", m.Code,
				"duration", m.Duration,
			)
		}
	})
}

// adminAuth accepts HS256 bearer tokens signed with secret. The token
// subject becomes the admin id.
func adminAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			adminID, err := parseAdminToken(strings.TrimSpace(raw), secret)
			if err != nil {
				slog.Warn("admin token rejected", "error", err)
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), adminIDKey, adminID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseAdminToken(raw string, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("admin secret not configured")
	}

	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return "", err
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}

	if sub == "" {
		return "", errors.New("token has no subject")
	}

	return sub, nil
}

func adminIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(adminIDKey).(string)
	return id
}
