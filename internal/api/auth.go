package api

import (
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/AaronLay10/SceneReel/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// authConfig holds credentials loaded from environment variables.
type authConfig struct {
	adminUser string
	adminPass string
	operators map[string]string
	enabled   bool
}

var auth *authConfig

// InitAuth loads credentials using the *_FILE convention:
// SCENEREEL_ADMIN_USER / SCENEREEL_ADMIN_PASS for the admin, and
// SCENEREEL_OPERATOR_USER / SCENEREEL_OPERATOR_PASS plus an optional
// SCENEREEL_OPERATORS list ("user:pass,user:pass") for operators.
// If no admin is set, authentication is disabled (dev-friendly).
func InitAuth() {
	resolve := func(name string) string {
		v, err := config.ResolveSecret(name)
		if err != nil {
			log.Fatalf("failed to resolve %s: %v", name, err)
		}
		return v
	}

	adminUser := resolve("SCENEREEL_ADMIN_USER")
	adminPass := resolve("SCENEREEL_ADMIN_PASS")

	operators := config.ParseUserList(resolve("SCENEREEL_OPERATORS"))
	if user, pass := resolve("SCENEREEL_OPERATOR_USER"), resolve("SCENEREEL_OPERATOR_PASS"); user != "" && pass != "" {
		operators[user] = pass
	}

	auth = &authConfig{
		adminUser: adminUser,
		adminPass: adminPass,
		operators: operators,
		enabled:   adminUser != "" && adminPass != "",
	}
}

// IsAuthEnabled returns true if authentication is configured.
func IsAuthEnabled() bool {
	return auth != nil && auth.enabled
}

// authenticate checks basic auth credentials and returns the role if valid.
// Returns empty string if credentials are invalid.
func authenticate(r *http.Request) Role {
	if auth == nil || !auth.enabled {
		return RoleAdmin // No auth configured = full access
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}

	if secureCompare(user, auth.adminUser) && secureCompare(pass, auth.adminPass) {
		return RoleAdmin
	}

	for opUser, opPass := range auth.operators {
		if opUser != "" && opPass != "" && secureCompare(user, opUser) && secureCompare(pass, opPass) {
			return RoleOperator
		}
	}

	return ""
}

// secureCompare performs constant-time string comparison to prevent timing attacks.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requireAuth returns 401 Unauthorized with WWW-Authenticate header.
func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="SceneReel"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireRole wraps a handler and requires one of the specified roles.
func RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireAnyRole wraps a handler requiring admin OR operator role.
func RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin, RoleOperator)
}

// RequireAdmin wraps a handler requiring admin role only.
func RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin)
}
