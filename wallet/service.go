package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"satspay/breez"
	"satspay/lightning"
	"satspay/observability"
)

// DefaultCacheTTL is the staleness window for balance and payment history.
const DefaultCacheTTL = 10 * time.Second

// InvoiceExpiry is the fixed lifetime of invoices this service creates.
const InvoiceExpiry = 3600 * time.Second

// Config carries the connection material for the node session. The API key
// comes from the trusted configuration boundary and the mnemonic from the
// caller; both are mandatory.
type Config struct {
	Network    breez.Network
	APIKey     string
	Mnemonic   string
	Passphrase string
	StorageDir string
	CacheTTL   time.Duration
}

type connectAttempt struct {
	done chan struct{}
	err  error
}

// Service owns the single node connection and exposes the payment lifecycle
// operations. All connect/disconnect transitions are serialised; overlapping
// Connect calls collapse into the one in-flight attempt.
type Service struct {
	connector  breez.Connector
	cfg        Config
	dispatcher *Dispatcher
	intents    IntentTracker
	log        *slog.Logger
	metrics    *observability.WalletMetrics
	now        func() time.Time

	mu           sync.Mutex
	sdk          breez.SDK
	attempt      *connectAttempt
	cancelEvents context.CancelFunc

	cacheMu    sync.Mutex
	balance    *Balance
	balanceAt  time.Time
	payments   []PaymentRecord
	paymentsAt time.Time
}

// Option customises the service.
type Option func(*Service)

// WithLogger supplies the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock sets the function used to derive timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDispatcher overrides the event dispatcher.
func WithDispatcher(d *Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// NewService constructs the wallet service. The service subscribes itself to
// the event stream to invalidate caches and drive payment intents.
func NewService(connector breez.Connector, cfg Config, opts ...Option) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	s := &Service{
		connector: connector,
		cfg:       cfg,
		log:       slog.Default(),
		metrics:   observability.Wallet(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatcher == nil {
		s.dispatcher = NewDispatcher(s.log)
	}
	s.dispatcher.Subscribe(func(ev breez.Event) {
		s.intents.Observe(ev)
		if RequiresRefresh(ev) {
			s.InvalidateCache()
		}
	})
	return s
}

// Events exposes the dispatcher for additional subscribers.
func (s *Service) Events() *Dispatcher { return s.dispatcher }

// ActiveIntent returns the intent awaiting settlement, or nil.
func (s *Service) ActiveIntent() *Intent { return s.intents.Active() }

// Connected reports whether a node session is live.
func (s *Service) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sdk != nil
}

// Connect establishes the node session. It is idempotent: a live session
// makes it a no-op, and callers overlapping an in-flight attempt await that
// attempt instead of starting another.
func (s *Service) Connect(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return fmt.Errorf("%w: node API key missing", ErrConfiguration)
	}
	if strings.TrimSpace(s.cfg.Mnemonic) == "" {
		return fmt.Errorf("%w: wallet mnemonic missing", ErrConfiguration)
	}

	s.mu.Lock()
	if s.sdk != nil {
		s.mu.Unlock()
		return nil
	}
	if att := s.attempt; att != nil {
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-att.done:
			return att.err
		}
	}
	att := &connectAttempt{done: make(chan struct{})}
	s.attempt = att
	s.mu.Unlock()

	att.err = s.establish(ctx)
	s.mu.Lock()
	s.attempt = nil
	s.mu.Unlock()
	close(att.done)
	return att.err
}

func (s *Service) establish(ctx context.Context) error {
	s.metrics.RecordConnectAttempt()
	sdk, err := s.connector.Connect(ctx, breez.ConnectRequest{
		Network:    s.cfg.Network,
		APIKey:     s.cfg.APIKey,
		Mnemonic:   s.cfg.Mnemonic,
		Passphrase: s.cfg.Passphrase,
		StorageDir: s.cfg.StorageDir,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	evCtx, cancel := context.WithCancel(context.Background())
	if _, err := sdk.AddEventListener(evCtx, s.dispatcher.Publish); err != nil {
		// The session stays usable without the stream; polling still works.
		s.log.Warn("event listener registration failed", "err", err)
	}

	s.mu.Lock()
	s.sdk = sdk
	s.cancelEvents = cancel
	s.mu.Unlock()
	s.log.Info("node session established", "network", string(s.cfg.Network))
	return nil
}

// Disconnect releases the session so a later Connect starts fresh.
func (s *Service) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	sdk := s.sdk
	cancel := s.cancelEvents
	s.sdk = nil
	s.cancelEvents = nil
	s.mu.Unlock()
	if sdk == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	s.InvalidateCache()
	if err := sdk.Disconnect(ctx); err != nil {
		return fmt.Errorf("wallet: disconnect: %w", err)
	}
	s.log.Info("node session released")
	return nil
}

func (s *Service) ready() (breez.SDK, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sdk == nil {
		return nil, ErrNotReady
	}
	return s.sdk, nil
}

// GetBalance returns the node balance, served from cache inside the
// staleness window.
func (s *Service) GetBalance(ctx context.Context) (*Balance, error) {
	sdk, err := s.ready()
	if err != nil {
		return nil, err
	}
	s.cacheMu.Lock()
	if s.balance != nil && s.now().Sub(s.balanceAt) < s.cfg.CacheTTL {
		cached := *s.balance
		s.cacheMu.Unlock()
		return &cached, nil
	}
	s.cacheMu.Unlock()

	info, err := sdk.GetInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet: get balance: %w", err)
	}
	balance := &Balance{
		TotalSats:      info.BalanceSats,
		SpendableSats:  info.BalanceSats,
		ReceivableSats: info.MaxReceivableSats,
	}
	s.cacheMu.Lock()
	s.balance = balance
	s.balanceAt = s.now()
	s.cacheMu.Unlock()
	cached := *balance
	return &cached, nil
}

// CreateInvoice asks the node for a bolt11 invoice and activates a payment
// intent for it. Amounts must be positive; invoice expiry is fixed.
func (s *Service) CreateInvoice(ctx context.Context, amountSats int64, description string) (*Invoice, error) {
	if amountSats <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	sdk, err := s.ready()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(description) == "" {
		description = "Lightning payment"
	}
	resp, err := sdk.ReceivePayment(ctx, breez.ReceiveRequest{
		Method:      breez.ReceiveMethodBolt11,
		Description: description,
		AmountSats:  amountSats,
	})
	if err != nil {
		return nil, classifyReceive(err)
	}
	invoice := &Invoice{
		PaymentRequest: resp.PaymentRequest,
		PaymentHash:    resp.PaymentID,
		AmountSats:     amountSats,
		Description:    description,
		FeeSats:        resp.FeeSats,
		ExpiresAt:      s.now().Add(InvoiceExpiry),
	}
	s.intents.Activate(NewInvoiceIntent(invoice.PaymentHash, invoice.PaymentRequest, amountSats, invoice.ExpiresAt).WithClock(s.now))
	s.invalidatePayments()
	s.metrics.RecordInvoiceCreated()
	return invoice, nil
}

// CreateAddress asks the node for an on-chain deposit address and activates
// an address intent, which settles on the first claimed deposit.
func (s *Service) CreateAddress(ctx context.Context) (*Address, error) {
	sdk, err := s.ready()
	if err != nil {
		return nil, err
	}
	resp, err := sdk.ReceivePayment(ctx, breez.ReceiveRequest{Method: breez.ReceiveMethodAddress})
	if err != nil {
		return nil, fmt.Errorf("wallet: create address: %w", err)
	}
	s.intents.Activate(NewAddressIntent(resp.PaymentRequest).WithClock(s.now))
	return &Address{Address: resp.PaymentRequest, FeeSats: resp.FeeSats}, nil
}

// SendPayment runs the two-phase prepare/execute flow for an outbound
// payment. Request validation happens locally before anything reaches the
// node; node failures are classified into the domain taxonomy.
func (s *Service) SendPayment(ctx context.Context, paymentRequest string) (*PaymentRecord, error) {
	if err := lightning.Validate(paymentRequest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req := lightning.Parse(paymentRequest); req != nil && req.Kind == lightning.KindInvoice && !req.HasAmount() {
		return nil, fmt.Errorf("%w: zero-amount invoices are not supported", ErrValidation)
	}
	sdk, err := s.ready()
	if err != nil {
		return nil, err
	}
	prepared, err := sdk.PrepareSendPayment(ctx, strings.TrimSpace(paymentRequest))
	if err != nil {
		s.metrics.RecordPaymentSent("prepare_failed")
		return nil, classifySend(err)
	}
	payment, err := sdk.SendPayment(ctx, prepared)
	if err != nil {
		s.metrics.RecordPaymentSent("failed")
		return nil, classifySend(err)
	}
	s.InvalidateCache()
	s.metrics.RecordPaymentSent("ok")
	record := mapPayment(*payment)
	return &record, nil
}

// ListPayments returns the node payment history, served from cache inside
// the staleness window.
func (s *Service) ListPayments(ctx context.Context) ([]PaymentRecord, error) {
	sdk, err := s.ready()
	if err != nil {
		return nil, err
	}
	s.cacheMu.Lock()
	if s.payments != nil && s.now().Sub(s.paymentsAt) < s.cfg.CacheTTL {
		cached := make([]PaymentRecord, len(s.payments))
		copy(cached, s.payments)
		s.cacheMu.Unlock()
		return cached, nil
	}
	s.cacheMu.Unlock()

	payments, err := sdk.ListPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet: list payments: %w", err)
	}
	records := make([]PaymentRecord, 0, len(payments))
	for _, p := range payments {
		records = append(records, mapPayment(p))
	}
	s.cacheMu.Lock()
	s.payments = records
	s.paymentsAt = s.now()
	s.cacheMu.Unlock()
	out := make([]PaymentRecord, len(records))
	copy(out, records)
	return out, nil
}

// InvalidateCache drops cached balance and payment history so the next read
// hits the node.
func (s *Service) InvalidateCache() {
	s.cacheMu.Lock()
	s.balance = nil
	s.payments = nil
	s.cacheMu.Unlock()
}

func (s *Service) invalidatePayments() {
	s.cacheMu.Lock()
	s.payments = nil
	s.cacheMu.Unlock()
}

// mapPayment converts the node vocabulary onto the orchestrator's model.
// Unknown node statuses collapse to failed.
func mapPayment(p breez.Payment) PaymentRecord {
	direction := DirectionReceived
	if p.Type == "send" || p.Type == "sent" {
		direction = DirectionSent
	}
	var status PaymentStatus
	switch p.Status {
	case "completed":
		status = PaymentComplete
	case "pending":
		status = PaymentPending
	default:
		status = PaymentFailed
	}
	ts := p.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	return PaymentRecord{
		ID:          p.ID,
		Direction:   direction,
		AmountMsat:  lightning.SatToMsat(p.AmountSats),
		FeeMsat:     lightning.SatToMsat(p.FeeSats),
		Status:      status,
		Timestamp:   time.Unix(ts, 0).UTC(),
		Description: p.Description,
		Invoice:     p.Invoice,
		Preimage:    p.Preimage,
	}
}
