// Package middleware provides HTTP middleware for the admin API
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// AuthConfig holds authentication configuration for the admin API —
// the operator-facing surface that reads auction/relayer state, not
// the bid-submission path (bids never arrive over HTTP, spec §6).
type AuthConfig struct {
	Enabled     bool
	APIKeys     map[string]string // key -> operator ID mapping
	HeaderName  string            // Header to check for API key (default: X-API-Key)
	BypassPaths []string          // Paths that don't require auth (e.g., /health, /status)
}

// DefaultAuthConfig returns default auth configuration
func DefaultAuthConfig() *AuthConfig {
	return &AuthConfig{
		Enabled:     os.Getenv("AUTH_ENABLED") == "true",
		APIKeys:     parseAPIKeys(os.Getenv("API_KEYS")),
		HeaderName:  "X-API-Key",
		BypassPaths: []string{"/health", "/status", "/metrics"},
	}
}

// parseAPIKeys parses API keys from env var format: "key1:op1,key2:op2"
func parseAPIKeys(envValue string) map[string]string {
	keys := make(map[string]string)
	if envValue == "" {
		return keys
	}

	pairs := strings.Split(envValue, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 {
			keys[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without an operator ID mapping
			keys[strings.TrimSpace(parts[0])] = "default"
		}
	}
	return keys
}

// Auth provides API key authentication middleware for the admin API
type Auth struct {
	config *AuthConfig
	mu     sync.RWMutex
	// keyCache avoids a constant-time compare over every configured key
	// on every request once a key has already been seen.
	keyCache     map[string]cachedKey
	cacheMu      sync.RWMutex
	cacheTimeout time.Duration
}

type cachedKey struct {
	operatorID string
	expiresAt  time.Time
}

// NewAuth creates a new Auth middleware
func NewAuth(config *AuthConfig) *Auth {
	if config == nil {
		config = DefaultAuthConfig()
	}
	return &Auth{
		config:       config,
		keyCache:     make(map[string]cachedKey),
		cacheTimeout: 60 * time.Second,
	}
}

// Middleware returns the authentication middleware handler
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.RLock()
		config := a.config
		a.mu.RUnlock()

		// Skip auth if disabled
		if !config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		// Check bypass paths
		for _, path := range config.BypassPaths {
			if strings.HasPrefix(r.URL.Path, path) {
				next.ServeHTTP(w, r)
				return
			}
		}

		// Get API key from header
		apiKey := r.Header.Get(config.HeaderName)
		if apiKey == "" {
			// Also check Authorization header with Bearer scheme
			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				apiKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if apiKey == "" {
			http.Error(w, `{"error":"missing API key"}`, http.StatusUnauthorized)
			return
		}

		// Validate API key
		operatorID, valid := a.validateKey(r.Context(), apiKey)
		if !valid {
			http.Error(w, `{"error":"invalid API key"}`, http.StatusForbidden)
			return
		}

		// Add operator ID to the request so downstream handlers can log
		// or scope by caller.
		r.Header.Set("X-Operator-ID", operatorID)

		next.ServeHTTP(w, r)
	})
}

// validateKey checks if an API key is valid and returns the associated operator ID
func (a *Auth) validateKey(ctx context.Context, key string) (string, bool) {
	_ = ctx // reserved for a future shared-key-store lookup; local-config validation never blocks
	if opID, found := a.checkCache(key); found {
		return opID, opID != ""
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	for validKey, opID := range a.config.APIKeys {
		// Use constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			a.updateCache(key, opID)
			return opID, true
		}
	}

	// Cache negative result briefly so a hammering caller doesn't force
	// a full scan of the key map on every request.
	a.updateCache(key, "")
	return "", false
}

// checkCache checks if a key is in the cache and still valid
func (a *Auth) checkCache(key string) (string, bool) {
	a.cacheMu.RLock()
	defer a.cacheMu.RUnlock()

	cached, exists := a.keyCache[key]
	if !exists {
		return "", false
	}

	if time.Now().After(cached.expiresAt) {
		return "", false
	}

	return cached.operatorID, true
}

// updateCache adds or updates a key in the cache
func (a *Auth) updateCache(key, operatorID string) {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()

	// Use shorter timeout for negative results
	timeout := a.cacheTimeout
	if operatorID == "" {
		timeout = 10 * time.Second
	}

	a.keyCache[key] = cachedKey{
		operatorID: operatorID,
		expiresAt:  time.Now().Add(timeout),
	}
}

// IsEnabled returns whether authentication is enabled
func (a *Auth) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.config.Enabled
}
