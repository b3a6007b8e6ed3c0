package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Roles in increasing order of privilege
const (
	RoleViewer  = "viewer"
	RoleAnalyst = "analyst"
	RoleAdmin   = "admin"
)

var roleRank = map[string]int{
	RoleViewer:  1,
	RoleAnalyst: 2,
	RoleAdmin:   3,
}

var (
	ErrMissingToken = errors.New("missing token")
	ErrNoVerifier   = errors.New("no token verifier configured")
)

type Claims struct {
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Role   string   `json:"role"`
	Groups []string `json:"groups"`
	jwt.RegisteredClaims
}

type contextKey string

const UserContextKey contextKey = "user"

// Options configure the Authenticator
type Options struct {
	// SkipAuth lets every request through as a local admin
	SkipAuth bool

	// JWTSecret verifies HS256 tokens when set
	JWTSecret string

	// OIDCIssuer verifies RS/ES tokens against the issuer's JWKS when set
	OIDCIssuer string
}

// Authenticator validates bearer tokens and stores the caller's claims in
// the request context
type Authenticator struct {
	opts   Options
	logger zerolog.Logger

	jwksOnce sync.Once
	jwks     keyfunc.Keyfunc
	jwksErr  error
}

// NewAuthenticator creates an Authenticator
func NewAuthenticator(opts Options, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		opts:   opts,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Middleware validates JWT tokens from the Authorization header or the
// token query parameter used by websocket clients
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.opts.SkipAuth {
			ctx := context.WithValue(r.Context(), UserContextKey, &Claims{
				Email: "dev@cdr.local",
				Name:  "Dev User",
				Role:  RoleAdmin,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		tokenString := extractToken(r)
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized: "+ErrMissingToken.Error())
			return
		}

		claims, err := a.Validate(tokenString)
		if err != nil {
			a.logger.Debug().Err(err).Msg("token validation failed")
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("Unauthorized: %v", err))
			return
		}

		a.logger.Debug().
			Str("email", claims.Email).
			Str("role", claims.Role).
			Msg("user authenticated")

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects callers whose role ranks below role
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if !HasRole(claims, role) {
				writeError(w, http.StatusForbidden, "Forbidden: requires role "+role)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractToken gets the token from Authorization header or query parameter
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString != authHeader {
			return tokenString
		}
	}

	// Browsers cannot set headers on websocket upgrades
	return r.URL.Query().Get("token")
}

// Validate verifies the token signature and expiry and extracts claims
func (a *Authenticator) Validate(tokenString string) (*Claims, error) {
	var (
		token *jwt.Token
		err   error
	)
	switch {
	case a.opts.JWTSecret != "":
		token, err = jwt.Parse(tokenString, func(*jwt.Token) (any, error) {
			return []byte(a.opts.JWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	case a.opts.OIDCIssuer != "":
		var kf jwt.Keyfunc
		kf, err = a.keyfunc()
		if err != nil {
			return nil, err
		}
		token, err = jwt.Parse(tokenString, kf, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}))
	default:
		return nil, ErrNoVerifier
	}
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	claims := &Claims{}
	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}
	if name, ok := mapClaims["name"].(string); ok {
		claims.Name = name
	} else if preferredUsername, ok := mapClaims["preferred_username"].(string); ok {
		claims.Name = preferredUsername
	}
	if sub, ok := mapClaims["sub"].(string); ok {
		claims.Subject = sub
	}
	claims.Groups = extractGroups(mapClaims)
	claims.Role = extractRole(mapClaims, claims.Groups)

	return claims, nil
}

// keyfunc fetches the issuer's JWKS once (Keycloak certs endpoint)
func (a *Authenticator) keyfunc() (jwt.Keyfunc, error) {
	a.jwksOnce.Do(func() {
		jwksURL := strings.TrimSuffix(a.opts.OIDCIssuer, "/") + "/protocol/openid-connect/certs"
		a.logger.Info().Str("url", jwksURL).Msg("fetching JWKS")
		a.jwks, a.jwksErr = keyfunc.NewDefault([]string{jwksURL})
	})
	if a.jwksErr != nil {
		return nil, fmt.Errorf("failed to initialize JWKS: %w", a.jwksErr)
	}
	return a.jwks.Keyfunc, nil
}

// extractRole picks the highest known role from the role claim, Keycloak
// realm roles or group names
func extractRole(mapClaims jwt.MapClaims, groups []string) string {
	var candidates []string
	if role, ok := mapClaims["role"].(string); ok {
		candidates = append(candidates, role)
	}
	if realmAccess, ok := mapClaims["realm_access"].(map[string]any); ok {
		if roles, ok := realmAccess["roles"].([]any); ok {
			for _, role := range roles {
				if roleStr, ok := role.(string); ok {
					candidates = append(candidates, roleStr)
				}
			}
		}
	}
	for _, g := range groups {
		for role := range roleRank {
			if strings.Contains(g, role) {
				candidates = append(candidates, role)
			}
		}
	}

	best := RoleViewer
	for _, c := range candidates {
		if roleRank[c] > roleRank[best] {
			best = c
		}
	}
	return best
}

func extractGroups(mapClaims jwt.MapClaims) []string {
	var groups []string
	for _, key := range []string{"groups", "cognito:groups"} {
		if claim, ok := mapClaims[key].([]any); ok {
			for _, group := range claim {
				if groupStr, ok := group.(string); ok {
					groups = append(groups, groupStr)
				}
			}
		}
	}
	return groups
}

// GetUserFromContext retrieves user claims from request context
func GetUserFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*Claims)
	return claims, ok
}

// HasRole reports whether the claims grant at least role
func HasRole(claims *Claims, role string) bool {
	return roleRank[claims.Role] >= roleRank[role] && roleRank[role] > 0
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
