// Package middleware provides HTTP middleware for the local API.
package middleware

import (
	"context"
	"net/http"

	"github.com/capitalize-ai/estate-assistant/internal/model"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// IdentityIDKey is the context key for the signed-in identity id.
	IdentityIDKey ContextKey = "identity_id"
)

// IdentitySource reports the signed-in identity.
type IdentitySource interface {
	AuthenticatedIdentity() (*model.Identity, bool)
}

// Identity stores the signed-in identity id, if any, in the request context.
func Identity(src IdentitySource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ident, ok := src.AuthenticatedIdentity(); ok {
				r = r.WithContext(context.WithValue(r.Context(), IdentityIDKey, ident.ID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireIdentity rejects requests made while nobody is signed in.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetIdentityID(r.Context()) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"sign in required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetIdentityID gets the identity id from context.
func GetIdentityID(ctx context.Context) string {
	if v, ok := ctx.Value(IdentityIDKey).(string); ok {
		return v
	}
	return ""
}
