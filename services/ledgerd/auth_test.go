package ledgerd

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func runAuth(a *Authenticator, header map[string]string, scopes ...string) (*httptest.ResponseRecorder, *Principal) {
	var seen *Principal
	handler := a.Middleware(scopes...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if ok {
			seen = &p
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/withdrawals", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestAuthenticatorValidatesTokens(t *testing.T) {
	cfg := testAuthConfig()
	cfg.Audience = "ledgerd"
	a := NewAuthenticator(cfg, nil)
	valid := jwt.MapClaims{
		"sub":   addr(7).Hex(),
		"iss":   "leadfive",
		"aud":   []interface{}{"other", "ledgerd"},
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": "ledger.payments",
	}

	rec, principal := runAuth(a, map[string]string{"Authorization": "Bearer " + signToken(t, valid, testSecret)}, "ledger.payments")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, principal)
	require.Equal(t, addr(7), principal.Subject)
	require.True(t, principal.Has("ledger.payments"))
	require.False(t, principal.Has("ledger.governance"))

	rec, _ = runAuth(a, map[string]string{"Authorization": "Bearer " + signToken(t, valid, testSecret)}, "ledger.governance")
	require.Equal(t, http.StatusForbidden, rec.Code)

	cases := map[string]jwt.MapClaims{
		"expired":        withClaim(valid, "exp", time.Now().Add(-time.Hour).Unix()),
		"wrong issuer":   withClaim(valid, "iss", "someone-else"),
		"wrong audience": withClaim(valid, "aud", "payoutd"),
		"bad subject":    withClaim(valid, "sub", "not-an-address"),
		"zero subject":   withClaim(valid, "sub", "0x0000000000000000000000000000000000000000"),
	}
	for name, claims := range cases {
		t.Run(name, func(t *testing.T) {
			rec, principal := runAuth(a, map[string]string{"Authorization": "Bearer " + signToken(t, claims, testSecret)})
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Nil(t, principal)
		})
	}

	rec, _ = runAuth(a, map[string]string{"Authorization": "Bearer " + signToken(t, valid, "wrong-secret")})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = runAuth(a, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = runAuth(a, map[string]string{"Authorization": "Basic abc"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticatorAcceptsScopeArrays(t *testing.T) {
	a := NewAuthenticator(testAuthConfig(), nil)
	claims := jwt.MapClaims{
		"sub":   addr(3).Hex(),
		"iss":   "leadfive",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": []interface{}{"ledger.governance", 42},
	}
	rec, principal := runAuth(a, map[string]string{"Authorization": "Bearer " + signToken(t, claims, testSecret)}, "ledger.governance")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{"ledger.governance"}, principal.Scopes)
}

func TestAuthenticatorDisabledTrustsHeader(t *testing.T) {
	cfg := testAuthConfig()
	cfg.Enabled = false
	a := NewAuthenticator(cfg, nil)

	rec, principal := runAuth(a, map[string]string{"X-Participant": addr(5).Hex()}, "ledger.governance")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, addr(5), principal.Subject)
	require.True(t, principal.Has("ledger.payments"))

	rec, _ = runAuth(a, map[string]string{"X-Participant": "0x12"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func withClaim(base jwt.MapClaims, key string, value interface{}) jwt.MapClaims {
	out := make(jwt.MapClaims, len(base))
	for k, v := range base {
		out[k] = v
	}
	out[key] = value
	return out
}
