package ledgerd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"leadfive/config"
	"leadfive/core/events"
	"leadfive/core/ledger"
	"leadfive/core/state"
	"leadfive/core/types"
)

const testSecret = "ledgerd-test-secret"

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func addr(n int) types.Address {
	return common.BigToAddress(big.NewInt(int64(n)))
}

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), unit)
}

type harness struct {
	t      *testing.T
	seq    *ledger.Sequencer
	hub    *Hub
	audit  *AuditLog
	server *Server
	auth   AuthConfig
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:         true,
		HMACSecret:      testSecret,
		Issuer:          "leadfive",
		ScopeClaim:      "scope",
		GovernanceScope: "ledger.governance",
		PaymentScope:    "ledger.payments",
	}
}

func openTestAudit(t *testing.T) *AuditLog {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	audit, err := NewAuditLog(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = audit.Close() })
	return audit
}

// newHarness builds a ledger seeded with the default plan and a root at
// addr(1) that has bought the entry package.
func newHarness(t *testing.T, opts ...ServerOption) *harness {
	t.Helper()
	plan := config.DefaultPlan()
	cfg, err := plan.LedgerConfig()
	require.NoError(t, err)

	hub := NewHub()
	fanout := &events.Fanout{}
	fanout.Add(hub)
	engine, err := ledger.New(state.NewLedger(), cfg, ledger.WithEmitter(fanout))
	require.NoError(t, err)
	seq := ledger.NewSequencer(engine, 0)
	seq.Start()
	t.Cleanup(seq.Stop)

	ctx := context.Background()
	require.NoError(t, seed(ctx, seq, plan, BootstrapConfig{Root: addr(1).Hex(), Tier: 1}, slog.Default()))
	require.NoError(t, seq.Do(ctx, func(e *ledger.Engine) error {
		_, err := e.Contribute(ctx, ledger.Contribution{Payer: addr(1), Tier: 1})
		return err
	}))

	audit := openTestAudit(t)
	authCfg := testAuthConfig()
	opts = append([]ServerOption{WithHub(hub), WithAudit(audit)}, opts...)
	server := NewServer(seq, NewAuthenticator(authCfg, nil), opts...)
	return &harness{t: t, seq: seq, hub: hub, audit: audit, server: server, auth: authCfg}
}

func (h *harness) token(subject types.Address, scopes ...string) string {
	h.t.Helper()
	claims := jwt.MapClaims{
		"sub": subject.Hex(),
		"iss": "leadfive",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if len(scopes) > 0 {
		claims["scope"] = strings.Join(scopes, " ")
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(h.t, err)
	return signed
}

func (h *harness) governance() string {
	return h.token(addr(999), h.auth.GovernanceScope, h.auth.PaymentScope)
}

func (h *harness) payments() string {
	return h.token(addr(998), h.auth.PaymentScope)
}

func (h *harness) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody[map[string]problem](t, rec)
	return body["error"].Code
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
}

var _ http.Handler = (*Server)(nil)
