package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pavelanni/qcm/internal/model"
)

const (
	userIDHeader   = "X-User-ID"
	userRoleHeader = "X-User-Role"
)

// identity reads the caller identity set by the upstream authentication
// layer and stores it in the request context.
func identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(userIDHeader), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusUnauthorized, map[string]errorBody{"error": {Kind: "unauthorized", Message: "missing or invalid " + userIDHeader}})
			return
		}
		role := model.UserRole(r.Header.Get(userRoleHeader))
		if role != model.UserRoleStudent && role != model.UserRoleTeacher {
			slog.Warn("unknown caller role", "role", role, "id", id)
			writeJSON(w, http.StatusUnauthorized, map[string]errorBody{"error": {Kind: "unauthorized", Message: fmt.Sprintf("unknown role %q", role)}})
			return
		}
		ctx := model.ContextWithIdentity(r.Context(), model.Identity{ID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole returns middleware that checks the caller has one of the allowed roles.
func requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := model.IdentityFromContext(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]errorBody{"error": {Kind: "unauthorized", Message: "unauthorized"}})
				return
			}
			for _, role := range allowed {
				if caller.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSON(w, http.StatusForbidden, map[string]errorBody{"error": {Kind: "forbidden", Message: "forbidden"}})
		})
	}
}

// caller returns the identity stored by the identity middleware.
func caller(r *http.Request) model.Identity {
	id, _ := model.IdentityFromContext(r.Context())
	return id
}
