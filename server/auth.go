package server

import (
	"fmt"
	"net/http"
	"parklot/internal"
	"parklot/internal/config"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
)

// Identity is the verified (subject, role) pair the gate extracts from a
// bearer token. The coordinator trusts it as already verified; role checks
// happen here, never inside the lifecycle logic.
type Identity struct {
	SubjectId string
	Role      string
}

func (i Identity) IsAdmin() bool {
	return i.Role == "admin"
}

type IdentityGate struct {
	secret []byte
	logger internal.LogHandler
}

func NewIdentityGate(conf *config.Config) *IdentityGate {
	return &IdentityGate{
		secret: []byte(conf.Jwt.Secret),
	}
}

func (g *IdentityGate) SetLogger(logger internal.LogHandler) {
	g.logger = logger
}

type protectedHandle func(w http.ResponseWriter, r *http.Request, params httprouter.Params, identity Identity)

// Protect verifies the bearer token and hands the identity to the wrapped
// handler.
func (g *IdentityGate) Protect(handle protectedHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		identity, err := g.verify(r)
		if err != nil {
			if g.logger != nil {
				g.logger.Warn(fmt.Sprintf("auth: rejected request from %s: %s", r.RemoteAddr, err))
			}
			writeEnvelope(w, http.StatusUnauthorized, apiResponse{Status: "error", Message: err.Error()})
			return
		}
		handle(w, r, params, identity)
	}
}

// ProtectAdmin is Protect plus an admin role requirement.
func (g *IdentityGate) ProtectAdmin(handle protectedHandle) httprouter.Handle {
	return g.Protect(func(w http.ResponseWriter, r *http.Request, params httprouter.Params, identity Identity) {
		if !identity.IsAdmin() {
			writeEnvelope(w, http.StatusForbidden, apiResponse{Status: "error", Message: "Access denied. Admin only."})
			return
		}
		handle(w, r, params, identity)
	})
}

func (g *IdentityGate) verify(r *http.Request) (Identity, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return Identity{}, fmt.Errorf("authorization header is required")
	}
	tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found || tokenString == "" {
		return Identity{}, fmt.Errorf("bearer token is required")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return g.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("invalid token claims")
	}
	identity := Identity{}
	if subject, ok := claims["user_id"].(string); ok {
		identity.SubjectId = subject
	} else if subject, err := claims.GetSubject(); err == nil {
		identity.SubjectId = subject
	}
	if identity.SubjectId == "" {
		return Identity{}, fmt.Errorf("token carries no subject")
	}
	if role, ok := claims["role"].(string); ok {
		identity.Role = role
	}
	return identity, nil
}
