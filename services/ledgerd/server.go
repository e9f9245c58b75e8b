package ledgerd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"leadfive/config"
	ledgererrors "leadfive/core/errors"
	"leadfive/core/ledger"
	"leadfive/core/types"
	"leadfive/native/matrix"
	"leadfive/native/registry"
	"leadfive/observability"
)

const (
	maxBodyBytes          = 1 << 20
	defaultGenealogyDepth = 3
	maxGenealogyDepth     = 10
	requestIDHeader       = "X-Request-ID"
)

type requestIDKey struct{}

// Server exposes the ledger over HTTP. Every handler, reads included, runs
// its engine call through the sequencer.
type Server struct {
	seq      *ledger.Sequencer
	auth     *Authenticator
	limiter  *RateLimiter
	idem     *IdempotencyStore
	audit    *AuditLog
	hub      *Hub
	logger   *slog.Logger
	decimals uint8

	governanceScope string
	paymentScope    string

	router chi.Router
}

// ServerOption customises the server.
type ServerOption func(*Server)

// WithIdempotency enables Idempotency-Key handling on mutations.
func WithIdempotency(store *IdempotencyStore) ServerOption {
	return func(s *Server) { s.idem = store }
}

// WithAudit appends committed mutations to audit.
func WithAudit(audit *AuditLog) ServerOption {
	return func(s *Server) { s.audit = audit }
}

// WithHub sets the event hub backing /v1/events.
func WithHub(hub *Hub) ServerOption {
	return func(s *Server) { s.hub = hub }
}

// WithRateLimiter applies per-client limits to the API.
func WithRateLimiter(limiter *RateLimiter) ServerOption {
	return func(s *Server) { s.limiter = limiter }
}

// WithServerLogger overrides the logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithDecimals sets the token decimals used to parse package prices.
func WithDecimals(decimals uint8) ServerOption {
	return func(s *Server) { s.decimals = decimals }
}

// NewServer builds the HTTP surface over seq.
func NewServer(seq *ledger.Sequencer, auth *Authenticator, opts ...ServerOption) *Server {
	s := &Server{
		seq:      seq,
		auth:     auth,
		logger:   slog.Default(),
		decimals: 18,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	s.governanceScope = auth.cfg.GovernanceScope
	s.paymentScope = auth.cfg.PaymentScope
	s.router = s.routes()
	return s
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "ledgerd")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.observe)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware("v1"))
		r.Get("/events", s.hub.handleStream)
		r.Get("/status", s.handleStatus)
		r.Get("/pools", s.handlePools)
		r.Get("/packages", s.handlePackages)
		r.Get("/packages/{tier}", s.handlePackage)
		r.Get("/participants/{id}", s.handleParticipant)
		r.Get("/participants/{id}/genealogy", s.handleGenealogy)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware())
			r.Use(s.idem.Middleware)
			r.Post("/participants", s.handleRegister)
			r.Post("/withdrawals", s.handleWithdraw)
			r.With(s.requireScope(s.paymentScope)).Post("/contributions", s.handleContribute)

			r.Group(func(r chi.Router) {
				r.Use(s.requireScope(s.governanceScope))
				r.Post("/pools/{pool}/distributions", s.handleDistribute)
				r.Put("/packages/{tier}", s.handleSetPackage)
				r.Put("/reinvest-rates", s.handleSetReinvestRates)
				r.Put("/participants/{id}/active", s.handleSetActive)
				r.Post("/admin/pause", s.handlePause(true))
				r.Post("/admin/resume", s.handlePause(false))
				r.Get("/admin/audit", s.handleAudit)
			})
		})
	})
	return r
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		observability.API().Observe(route, r.Method, recorder.status, time.Since(start))
	})
}

func (s *Server) requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok || !principal.Has(scope) {
				writeProblem(w, http.StatusForbidden, "forbidden", "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap exposes the underlying writer for websocket hijacking.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack lets the websocket handshake take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// --- request payloads ---

type registerRequest struct {
	ID       string `json:"id"`
	Referrer string `json:"referrer"`
	Tier     uint32 `json:"tier"`
	Root     bool   `json:"root"`
}

type contributionRequest struct {
	ID       string `json:"id"`
	Tier     uint32 `json:"tier"`
	Referrer string `json:"referrer"`
}

type distributionRequest struct {
	Period *uint64 `json:"period"`
}

type packageRequest struct {
	Name   string          `json:"name"`
	Price  string          `json:"price"`
	Active bool            `json:"active"`
	Rates  types.RateTable `json:"rates"`
}

type activeRequest struct {
	Active *bool `json:"active"`
}

type participantView struct {
	*types.Participant
	RankName string `json:"rankName"`
}

// --- mutations ---

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := principal.Subject
	if strings.TrimSpace(req.ID) != "" {
		parsed, err := parseAddress(req.ID)
		if err != nil {
			writeLedgerError(w, ledgererrors.ErrInvalidParticipant.With("id", "%v", err))
			return
		}
		id = parsed
	}
	governance := principal.Has(s.governanceScope)
	if id != principal.Subject && !governance {
		writeProblem(w, http.StatusForbidden, "forbidden", "cannot register another participant")
		return
	}
	if req.Root && !governance {
		writeProblem(w, http.StatusForbidden, "forbidden", "root registration requires governance scope")
		return
	}
	referrer, ok := optionalReferrer(w, req.Referrer)
	if !ok {
		return
	}
	var out *types.Participant
	err := s.seq.Do(r.Context(), func(e *ledger.Engine) error {
		p, err := e.Register(r.Context(), registry.Request{
			ID:       id,
			Referrer: referrer,
			Tier:     types.TierID(req.Tier),
			AsRoot:   req.Root,
		})
		out = p
		return err
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	s.record(r, "register", out)
	writeJSON(w, http.StatusCreated, participantView{Participant: out, RankName: out.Rank.String()})
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	var req contributionRequest
	if !s.decode(w, r, &req) {
		return
	}
	payer, err := parseAddress(req.ID)
	if err != nil {
		writeLedgerError(w, ledgererrors.ErrInvalidParticipant.With("id", "%v", err))
		return
	}
	referrer, ok := optionalReferrer(w, req.Referrer)
	if !ok {
		return
	}
	var report *types.DistributionReport
	err = s.seq.Do(r.Context(), func(e *ledger.Engine) error {
		rep, err := e.Contribute(r.Context(), ledger.Contribution{Payer: payer, Tier: types.TierID(req.Tier), Referrer: referrer})
		report = rep
		return err
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	s.record(r, "contribute", report)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	if principal.Subject == (types.Address{}) {
		writeProblem(w, http.StatusUnauthorized, "unauthorized", "caller identity required")
		return
	}
	var out *types.WithdrawalEvent
	err := s.seq.Do(r.Context(), func(e *ledger.Engine) error {
		ev, err := e.Withdraw(r.Context(), principal.Subject)
		out = ev
		return err
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	s.record(r, "withdraw", out)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	name, err := types.ParsePoolName(chi.URLParam(r, "pool"))
	if err != nil {
		writeLedgerError(w, ledgererrors.ErrUnknownPool.With("pool", "%v", err))
		return
	}
	var req distributionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Period == nil {
		writeProblem(w, http.StatusBadRequest, "invalid_request", "period is required")
		return
	}
	var report *types.DistributionReport
	err = s.seq.Do(r.Context(), func(e *ledger.Engine) error {
		rep, err := e.DistributePool(r.Context(), name, *req.Period)
		report = rep
		return err
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	s.record(r, "distribute_pool", report)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSetPackage(w http.ResponseWriter, r *http.Request) {
	tier, err := strconv.ParseUint(chi.URLParam(r, "tier"), 10, 32)
	if err != nil || tier == 0 {
		writeLedgerError(w, ledgererrors.ErrInvalidPackage.With("tier", "%q", chi.URLParam(r, "tier")))
		return
	}
	var req packageRequest
	if !s.decode(w, r, &req) {
		return
	}
	price, err := config.ParseUnits(req.Price, s.decimals)
	if err != nil {
		writeLedgerError(w, ledgererrors.ErrInvalidAmount.With("price", "%v", err))
		return
	}
	pkg := &types.Package{
		Tier:   types.TierID(tier),
		Name:   types.NormalizePackageName(req.Name),
		Price:  price,
		Rates:  req.Rates,
		Active: req.Active,
	}
	if err := s.seq.Do(r.Context(), func(e *ledger.Engine) error {
		return e.SetPackage(r.Context(), pkg)
	}); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.record(r, "set_package", pkg)
	writeJSON(w, http.StatusOK, pkg)
}

func (s *Server) handleSetReinvestRates(w http.ResponseWriter, r *http.Request) {
	var rates types.RateTable
	if !s.decode(w, r, &rates) {
		return
	}
	if err := s.seq.Do(r.Context(), func(e *ledger.Engine) error {
		return e.SetReinvestRates(r.Context(), rates)
	}); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.record(r, "set_reinvest_rates", rates)
	writeJSON(w, http.StatusOK, rates)
}

func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseAddress(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, ledgererrors.ErrUserNotRegistered.With("participant", "%v", err))
		return
	}
	var req activeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Active == nil {
		writeProblem(w, http.StatusBadRequest, "invalid_request", "active is required")
		return
	}
	if err := s.seq.Do(r.Context(), func(e *ledger.Engine) error {
		return e.SetActive(r.Context(), id, *req.Active)
	}); err != nil {
		writeLedgerError(w, err)
		return
	}
	payload := map[string]any{"id": id, "active": *req.Active}
	s.record(r, "set_active", payload)
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handlePause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.seq.Do(r.Context(), func(e *ledger.Engine) error {
			return e.SetPaused(r.Context(), paused)
		}); err != nil {
			writeLedgerError(w, err)
			return
		}
		payload := map[string]bool{"paused": paused}
		s.record(r, "set_paused", payload)
		writeJSON(w, http.StatusOK, payload)
	}
}

// --- reads ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.seq.Do(ctx, func(*ledger.Engine) error { return nil }); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var status ledger.Status
	err := s.seq.Do(r.Context(), func(e *ledger.Engine) error {
		status = e.Status()
		return nil
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	var out []*types.Pool
	err := s.seq.Do(r.Context(), func(e *ledger.Engine) error {
		out = e.Pools()
		return nil
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	var out []*types.Package
	err := s.seq.Do(r.Context(), func(e *ledger.Engine) error {
		out = e.Packages()
		return nil
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePackage(w http.ResponseWriter, r *http.Request) {
	tier, err := strconv.ParseUint(chi.URLParam(r, "tier"), 10, 32)
	if err != nil {
		writeLedgerError(w, ledgererrors.ErrInvalidPackage.With("tier", "%q", chi.URLParam(r, "tier")))
		return
	}
	var out *types.Package
	err = s.seq.Do(r.Context(), func(e *ledger.Engine) error {
		pkg, err := e.Package(types.TierID(tier))
		out = pkg
		return err
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleParticipant(w http.ResponseWriter, r *http.Request) {
	id, err := parseAddress(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, ledgererrors.ErrUserNotRegistered.With("participant", "%v", err))
		return
	}
	var out *types.Participant
	err = s.seq.Do(r.Context(), func(e *ledger.Engine) error {
		p, err := e.Participant(id)
		out = p
		return err
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participantView{Participant: out, RankName: out.Rank.String()})
}

func (s *Server) handleGenealogy(w http.ResponseWriter, r *http.Request) {
	id, err := parseAddress(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, ledgererrors.ErrUserNotRegistered.With("participant", "%v", err))
		return
	}
	levels := uint64(defaultGenealogyDepth)
	if raw := r.URL.Query().Get("levels"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid_request", "levels must be a non-negative integer")
			return
		}
		levels = parsed
	}
	if levels > maxGenealogyDepth {
		levels = maxGenealogyDepth
	}
	var out *matrix.Genealogy
	err = s.seq.Do(r.Context(), func(e *ledger.Engine) error {
		g, err := e.Genealogy(id, levels)
		out = g
		return err
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusOK, []AuditRecord{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.audit.Recent(r.Context(), r.URL.Query().Get("op"), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "audit_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// --- helpers ---

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeProblem(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

// record appends a committed mutation to the audit log. The ledger has
// already committed, so an audit failure is logged rather than returned.
func (s *Server) record(r *http.Request, op string, payload any) {
	if s.audit == nil {
		return
	}
	subject := ""
	if principal, ok := PrincipalFrom(r.Context()); ok {
		subject = principal.Subject.Hex()
	}
	requestID, _ := r.Context().Value(requestIDKey{}).(string)
	if err := s.audit.Record(r.Context(), requestID, op, subject, payload); err != nil {
		s.logger.Warn("audit write failed", slog.String("op", op), slog.Any("error", err))
	}
}

func optionalReferrer(w http.ResponseWriter, raw string) (*types.Address, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, true
	}
	addr, err := parseAddress(raw)
	if err != nil {
		writeLedgerError(w, ledgererrors.ErrInvalidReferrer.With("referrer", "%v", err))
		return nil, false
	}
	return &addr, true
}

type problem struct {
	Kind   string `json:"kind,omitempty"`
	Code   string `json:"code"`
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeProblem(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]problem{"error": {Code: code, Detail: detail}})
}

func writeLedgerError(w http.ResponseWriter, err error) {
	var le *ledgererrors.Error
	if errors.As(err, &le) {
		writeJSON(w, statusFor(le), map[string]problem{"error": {
			Kind:   le.Kind.String(),
			Code:   le.Code,
			Field:  le.Field,
			Detail: le.Detail,
		}})
		return
	}
	switch {
	case errors.Is(err, ledger.ErrSequencerStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		writeProblem(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		writeProblem(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func statusFor(err *ledgererrors.Error) int {
	switch err.Kind {
	case ledgererrors.KindValidation:
		return http.StatusBadRequest
	case ledgererrors.KindState:
		if errors.Is(err, ledgererrors.ErrUserNotRegistered) {
			return http.StatusNotFound
		}
		return http.StatusConflict
	case ledgererrors.KindScheduling:
		if errors.Is(err, ledgererrors.ErrUnknownPool) {
			return http.StatusNotFound
		}
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
