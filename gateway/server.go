package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"satspay/rewards"
	"satspay/wallet"
)

const maxRequestBody = 1 << 20

// Config captures the dependencies required to construct the gateway.
type Config struct {
	Wallet        *wallet.Service
	Reconciler    *rewards.Reconciler
	Authorizer    Authorizer
	SessionSecret string
	Logger        *slog.Logger
	Now           func() time.Time
}

// Server exposes the HTTP surface for the wallet and rewards flows.
type Server struct {
	wallet        *wallet.Service
	reconciler    *rewards.Reconciler
	authorizer    Authorizer
	sessionSecret []byte
	log           *slog.Logger
	now           func() time.Time

	router http.Handler
}

// New constructs a configured gateway server.
func New(cfg Config) (*Server, error) {
	if cfg.Wallet == nil {
		return nil, errors.New("gateway: wallet service required")
	}
	if cfg.Reconciler == nil {
		return nil, errors.New("gateway: reconciler required")
	}
	if cfg.Authorizer == nil {
		return nil, errors.New("gateway: authorizer required")
	}
	secret := strings.TrimSpace(cfg.SessionSecret)
	if secret == "" {
		return nil, errors.New("gateway: session secret required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	srv := &Server{
		wallet:        cfg.Wallet,
		reconciler:    cfg.Reconciler,
		authorizer:    cfg.Authorizer,
		sessionSecret: []byte(secret),
		log:           logger,
		now:           nowFn,
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/auth/login", s.handleLogin)
		api.Group(func(protected chi.Router) {
			protected.Use(s.requireSession)
			protected.Get("/rewards/pending", s.handlePendingRewards)
			protected.Post("/rewards/claim", s.handleClaim)
			protected.Get("/rewards/claim/status", s.handleClaimStatus)
			protected.Post("/rewards/claim/payout", s.handlePayout)
			protected.Get("/wallet/balance", s.handleBalance)
			protected.Get("/wallet/payments", s.handlePayments)
			protected.Post("/wallet/invoices", s.handleCreateInvoice)
			protected.Post("/wallet/address", s.handleCreateAddress)
			protected.Post("/wallet/send", s.handleSend)
			protected.Get("/wallet/intent", s.handleIntent)
		})
	})

	return otelhttp.NewHandler(r, "satspay-gateway")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if !s.wallet.Connected() {
		status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

type loginRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("email is required"))
		return
	}
	verdict, err := s.authorizer.Authorize(r.Context(), email)
	if err != nil {
		s.log.Error("authorization check failed", "err", err)
		s.writeError(w, http.StatusBadGateway, errors.New("authorization check failed"))
		return
	}
	if !verdict.Authorized {
		s.writeError(w, http.StatusForbidden, errors.New("email not authorized"))
		return
	}
	token, err := s.issueToken(email)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, errors.New("session issue failed"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":    token,
		"userData": verdict.UserData,
	})
}

func (s *Server) handlePendingRewards(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromContext(r.Context())
	summary, err := s.reconciler.ListPending(r.Context(), subject)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

type claimRequest struct {
	RewardEventIDs []uuid.UUID `json:"rewardEventIds"`
	PaymentRequest string      `json:"paymentRequest"`
}

type claimResponse struct {
	Success    bool   `json:"success"`
	ClaimID    string `json:"claimId,omitempty"`
	AmountSats int64  `json:"amountSats"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromContext(r.Context())
	var req claimRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	claim, err := s.reconciler.Claim(r.Context(), subject, req.RewardEventIDs, req.PaymentRequest)
	if err != nil {
		status := statusForError(err)
		s.writeJSON(w, status, claimResponse{Success: false, Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, claimResponse{
		Success:    true,
		ClaimID:    claim.ID.String(),
		AmountSats: claim.AmountSats,
	})
}

func (s *Server) handleClaimStatus(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromContext(r.Context())
	status, err := s.reconciler.ClaimStatus(r.Context(), subject)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromContext(r.Context())
	claim, err := s.reconciler.Payout(r.Context(), s.wallet, subject)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"claimId":    claim.ID.String(),
		"status":     string(claim.Status),
		"amountSats": claim.AmountSats,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.wallet.GetBalance(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balance)
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	payments, err := s.wallet.ListPayments(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"payments": payments})
}

type invoiceRequest struct {
	AmountSats  int64  `json:"amountSats"`
	Description string `json:"description"`
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	invoice, err := s.wallet.CreateInvoice(r.Context(), req.AmountSats, req.Description)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, invoice)
}

func (s *Server) handleCreateAddress(w http.ResponseWriter, r *http.Request) {
	address, err := s.wallet.CreateAddress(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, address)
}

type sendRequest struct {
	PaymentRequest string `json:"paymentRequest"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	record, err := s.wallet.SendPayment(r.Context(), req.PaymentRequest)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	intent := s.wallet.ActiveIntent()
	if intent == nil {
		s.writeError(w, http.StatusNotFound, errors.New("no active payment intent"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"state":          string(intent.State()),
		"paymentRequest": intent.PaymentRequest(),
	})
}

// statusForError maps the domain error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, wallet.ErrValidation),
		errors.Is(err, rewards.ErrEmptyRewardSet),
		errors.Is(err, rewards.ErrInvalidInvoice),
		errors.Is(err, rewards.ErrNoClaimableRewards):
		return http.StatusBadRequest
	case errors.Is(err, rewards.ErrAlreadyClaiming):
		return http.StatusConflict
	case errors.Is(err, rewards.ErrStudentNotFound),
		errors.Is(err, rewards.ErrNoClaims),
		errors.Is(err, rewards.ErrClaimNotFound):
		return http.StatusNotFound
	case errors.Is(err, wallet.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, wallet.ErrConnection):
		return http.StatusBadGateway
	case errors.Is(err, wallet.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, wallet.ErrInsufficientBalance),
		errors.Is(err, wallet.ErrInsufficientCapacity),
		errors.Is(err, wallet.ErrNoRoute),
		errors.Is(err, wallet.ErrInvoiceInvalid):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	s.writeError(w, statusForError(err), err)
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, out interface{}) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer func() { _ = r.Body.Close() }()
	if err := json.NewDecoder(reader).Decode(out); err != nil {
		return errors.New("invalid JSON payload")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
