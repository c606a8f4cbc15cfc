package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"saksflyt/internal/oppgave"
)

type AuthConfig struct {
	JWTSecret string
	ADGruppe  string
	Logger    *slog.Logger
}

type saksbehandlerKey struct{}

func (c AuthConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func withSaksbehandler(ctx context.Context, sb oppgave.Saksbehandler) context.Context {
	return context.WithValue(ctx, saksbehandlerKey{}, sb)
}

func saksbehandlerFromContext(ctx context.Context) (oppgave.Saksbehandler, bool) {
	sb, ok := ctx.Value(saksbehandlerKey{}).(oppgave.Saksbehandler)
	return sb, ok
}

func saksbehandlerFromRequest(ctx context.Context) (oppgave.Saksbehandler, huma.StatusError) {
	if sb, ok := saksbehandlerFromContext(ctx); ok && sb.NavIdent != "" {
		return sb, nil
	}
	return oppgave.Saksbehandler{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	NAVident string   `json:"NAVident"`
	Groups   []string `json:"groups,omitempty"`
}

func authenticateJWT(token, secret string) (oppgave.Saksbehandler, error) {
	if strings.TrimSpace(secret) == "" {
		return oppgave.Saksbehandler{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return oppgave.Saksbehandler{}, err
	}
	if !parsed.Valid {
		return oppgave.Saksbehandler{}, errors.New("invalid token")
	}
	if claims.NAVident == "" {
		return oppgave.Saksbehandler{}, errors.New("NAVident claim required")
	}
	return oppgave.Saksbehandler{
		NavIdent: claims.NAVident,
		Grupper:  claims.Groups,
		Token:    token,
	}, nil
}

func harGruppe(grupper []string, gruppe string) bool {
	for _, g := range grupper {
		if g == gruppe {
			return true
		}
	}
	return false
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Only enforce for API base path.
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if req.URL.Path == healthPath {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			sb, err := authenticateJWT(token, cfg.JWTSecret)
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			if cfg.ADGruppe != "" && !harGruppe(sb.Grupper, cfg.ADGruppe) {
				cfg.logger().Warn("avvist saksbehandler uten gruppe", "navIdent", sb.NavIdent)
				respondStatusError(w, newAPIError(http.StatusForbidden, "forbidden", "missing required group", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withSaksbehandler(req.Context(), sb)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
