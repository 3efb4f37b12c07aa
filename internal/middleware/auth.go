package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type contextKey string

const deviceIDKey contextKey = "device_id"

// TokenValidator resolves a bearer token to a device id
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// AuthMiddleware creates a middleware for JWT authentication
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			deviceID, err := validator.ValidateToken(parts[1])
			if err != nil {
				respondError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithDeviceID(r.Context(), deviceID)))
		})
	}
}

// WithDeviceID stores the authenticated device id in ctx
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDKey, deviceID)
}

// GetDeviceID extracts the device id from context
func GetDeviceID(ctx context.Context) string {
	deviceID, ok := ctx.Value(deviceIDKey).(string)
	if !ok {
		return ""
	}
	return deviceID
}

// ValidateWebSocketToken validates a token passed as a WebSocket query parameter
func ValidateWebSocketToken(token string, validator TokenValidator) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token required")
	}
	return validator.ValidateToken(token)
}

func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
