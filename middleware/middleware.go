package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"taskboard/auth"
	"taskboard/logging"
	"taskboard/utils"

	"github.com/sirupsen/logrus"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs one line per request once it has been served.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry := logging.Logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).Round(time.Microsecond).String(),
			"ip":       utils.GetIP(r),
		})
		switch {
		case rec.status >= 500:
			entry.Error("Event ID: HTTP_REQUEST, Description: request failed")
		case rec.status >= 400:
			entry.Warn("Event ID: HTTP_REQUEST, Description: request rejected")
		default:
			entry.Info("Event ID: HTTP_REQUEST, Description: request served")
		}
	})
}

// Recoverer turns a handler panic into a 500.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.Logger.Errorf("Event ID: HANDLER_PANIC, Description: panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORS allows the browser client to call the API from origin.
func CORS(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+auth.CSRFHeader)
			w.Header().Set("Access-Control-Max-Age", "86400")
			if origin != "*" {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects requests the provider cannot authenticate with 401
// (403 for a bad CSRF token) and stores the identity in the request context.
func RequireAuth(provider auth.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := provider.Authenticate(r)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrInvalidCSRF):
					logging.Logger.Warnf("Event ID: AUTH_INVALID_CSRF, Description: CSRF check failed for %s %s", r.Method, r.URL.Path)
					writeError(w, http.StatusForbidden, "invalid CSRF token")
				case errors.Is(err, auth.ErrUnauthenticated):
					logging.Logger.Debugf("Event ID: AUTH_REJECTED, Description: %s %s: %v", r.Method, r.URL.Path, err)
					writeError(w, http.StatusUnauthorized, "authentication required")
				default:
					logging.Logger.Errorf("Event ID: AUTH_ERROR, Description: authenticating %s %s: %v", r.Method, r.URL.Path, err)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuth attaches the identity when the request carries valid
// credentials and otherwise passes the request through untouched.
func OptionalAuth(provider auth.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, err := provider.Authenticate(r); err == nil {
				r = r.WithContext(auth.WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}
