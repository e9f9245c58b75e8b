package ledgerd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"

	"leadfive/core/types"
)

type contextKey string

const (
	contextKeySubject contextKey = "ledgerd.subject"
	contextKeyScopes  contextKey = "ledgerd.scopes"
)

// Principal is the authenticated caller resolved from a bearer token.
type Principal struct {
	Subject types.Address
	Scopes  []string
}

// Has reports whether the principal carries scope.
func (p Principal) Has(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Authenticator validates HMAC-signed JWTs. The subject claim must be the
// hex address of the participant acting on the ledger.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	logger *slog.Logger
}

// NewAuthenticator constructs an authenticator from cfg.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew.Duration <= 0 {
		cfg.ClockSkew.Duration = 2 * time.Minute
	}
	return &Authenticator{
		cfg:    cfg,
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		logger: logger,
	}
}

// Middleware rejects requests without a valid token or missing any of
// requiredScopes. With auth disabled the subject is read from the
// X-Participant header and every scope is granted, which is only suitable for
// local development.
func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, status, err := a.authenticate(r)
			if err != nil {
				a.logger.Debug("ledgerd: authentication failed", slog.String("path", r.URL.Path), slog.Any("error", err))
				writeProblem(w, status, "unauthorized", err.Error())
				return
			}
			for _, scope := range requiredScopes {
				if !principal.Has(scope) {
					writeProblem(w, http.StatusForbidden, "forbidden", "insufficient scope")
					return
				}
			}
			ctx := context.WithValue(r.Context(), contextKeySubject, principal.Subject)
			ctx = context.WithValue(ctx, contextKeyScopes, principal.Scopes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) authenticate(r *http.Request) (Principal, int, error) {
	if !a.cfg.Enabled {
		var subject types.Address
		if raw := strings.TrimSpace(r.Header.Get("X-Participant")); raw != "" {
			addr, err := parseAddress(raw)
			if err != nil {
				return Principal{}, http.StatusUnauthorized, err
			}
			subject = addr
		}
		return Principal{
			Subject: subject,
			Scopes:  []string{a.cfg.GovernanceScope, a.cfg.PaymentScope},
		}, 0, nil
	}
	token := extractBearer(r.Header.Get("Authorization"))
	if token == "" {
		return Principal{}, http.StatusUnauthorized, errors.New("missing bearer token")
	}
	claims, err := a.parseToken(token)
	if err != nil {
		return Principal{}, http.StatusUnauthorized, fmt.Errorf("invalid token: %w", err)
	}
	if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
		return Principal{}, http.StatusUnauthorized, err
	}
	sub, _ := claims["sub"].(string)
	subject, err := parseAddress(sub)
	if err != nil {
		return Principal{}, http.StatusUnauthorized, fmt.Errorf("subject: %w", err)
	}
	return Principal{Subject: subject, Scopes: extractScopes(claims, a.cfg.ScopeClaim)}, 0, nil
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew.Duration))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func validateClaims(claims jwt.MapClaims, issuer, audience string) error {
	if issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if audience != "" {
		switch val := claims["aud"].(type) {
		case string:
			if val != audience {
				return errors.New("audience mismatch")
			}
		case []interface{}:
			matched := false
			for _, entry := range val {
				if s, ok := entry.(string); ok && s == audience {
					matched = true
					break
				}
			}
			if !matched {
				return errors.New("audience mismatch")
			}
		default:
			return errors.New("audience missing")
		}
	}
	return nil
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func extractBearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// PrincipalFrom returns the principal stored by the auth middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	subject, ok := ctx.Value(contextKeySubject).(types.Address)
	if !ok {
		return Principal{}, false
	}
	scopes, _ := ctx.Value(contextKeyScopes).([]string)
	return Principal{Subject: subject, Scopes: scopes}, true
}

func parseAddress(raw string) (types.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return types.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	addr := common.HexToAddress(raw)
	if addr == (types.Address{}) {
		return types.Address{}, errors.New("zero address")
	}
	return addr, nil
}
