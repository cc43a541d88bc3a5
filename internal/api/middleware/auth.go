package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ayo6706/ledger-gate/internal/api/problem"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	callerContextKey contextKey = "caller"
	traceContextKey  contextKey = "trace_id"
)

// Roles a token may carry. Agents drive the gate and the orchestrator,
// auditors read the decision ledger, admins do both and run reconciliation.
const (
	RoleAgent   = "agent"
	RoleAuditor = "auditor"
	RoleAdmin   = "admin"
)

var knownRoles = map[string]struct{}{
	RoleAgent:   {},
	RoleAuditor: {},
	RoleAdmin:   {},
}

var jwtSecret []byte
var jwtIssuer string
var jwtAudience string

// Caller is the authenticated principal behind a request.
type Caller struct {
	ID        string
	Role      string
	AgentName string
}

type callerClaims struct {
	Role      string `json:"role"`
	AgentName string `json:"agent_name,omitempty"`
	jwt.RegisteredClaims
}

func SetJWTSecret(secret string) {
	if secret == "" {
		return
	}
	jwtSecret = []byte(secret)
}

func SetJWTValidation(issuer, audience string) {
	jwtIssuer = strings.TrimSpace(issuer)
	jwtAudience = strings.TrimSpace(audience)
}

func JWTSecret() []byte {
	clone := make([]byte, len(jwtSecret))
	copy(clone, jwtSecret)
	return clone
}

func JWTIssuer() string {
	return jwtIssuer
}

func JWTAudience() string {
	return jwtAudience
}

// AuthMiddleware verifies an HS256 bearer token minted by the upstream
// identity provider. The subject names the caller and the role must be one
// this service knows.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, r, "auth/authorization-header-required", "Authorization header required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			unauthorized(w, r, "auth/invalid-token-format", "Invalid token format")
			return
		}
		if len(jwtSecret) == 0 {
			problem.Write(w, r, http.StatusInternalServerError, problem.Type("auth/misconfigured"), http.StatusText(http.StatusInternalServerError), "auth is not configured")
			return
		}

		claims := &callerClaims{}
		opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
		if jwtIssuer != "" {
			opts = append(opts, jwt.WithIssuer(jwtIssuer))
		}
		if jwtAudience != "" {
			opts = append(opts, jwt.WithAudience(jwtAudience))
		}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
			}
			return jwtSecret, nil
		}, opts...)
		if err != nil || !token.Valid {
			unauthorized(w, r, "auth/invalid-token", "Invalid token")
			return
		}
		if strings.TrimSpace(claims.Subject) == "" {
			unauthorized(w, r, "auth/invalid-token-claims", "token subject is required")
			return
		}
		if _, ok := knownRoles[claims.Role]; !ok {
			unauthorized(w, r, "auth/invalid-token-claims", fmt.Sprintf("unknown role %q", claims.Role))
			return
		}

		caller := Caller{ID: claims.Subject, Role: claims.Role, AgentName: strings.TrimSpace(claims.AgentName)}
		next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), caller)))
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, slug, detail string) {
	problem.Write(w, r, http.StatusUnauthorized, problem.Type(slug), http.StatusText(http.StatusUnauthorized), detail)
}

// RequireRole lets the request through only when the caller holds one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, _ := CallerFromContext(r.Context())
			if _, ok := allowed[caller.Role]; !ok {
				problem.Write(w, r, http.StatusForbidden, problem.Type("auth/insufficient-permissions"), http.StatusText(http.StatusForbidden), "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ContextWithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	if ctx == nil {
		return Caller{}, false
	}
	c, ok := ctx.Value(callerContextKey).(Caller)
	return c, ok
}

// TraceIDFromContext returns the trace id for the request.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceContextKey).(string); ok {
		return v
	}
	return ""
}
