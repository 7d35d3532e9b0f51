package wallet

import (
	"sync"
	"time"

	"satspay/breez"
	"satspay/lightning"
)

// IntentState tracks a receive flow from creation to a terminal outcome.
type IntentState string

const (
	IntentCreated   IntentState = "created"
	IntentSucceeded IntentState = "succeeded"
	IntentExpired   IntentState = "expired"
	IntentFailed    IntentState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s IntentState) Terminal() bool {
	return s == IntentSucceeded || s == IntentExpired || s == IntentFailed
}

// Intent is the local expectation that one invoice or address will settle.
// Expiry is enforced here regardless of the node's own view: once expired an
// intent never resurrects, a fresh one must be created.
type Intent struct {
	mu             sync.Mutex
	kind           lightning.RequestKind
	paymentHash    string
	paymentRequest string
	amountSats     int64
	expiresAt      time.Time
	state          IntentState
	now            func() time.Time
}

// NewInvoiceIntent tracks settlement of a bolt11 invoice by payment hash.
func NewInvoiceIntent(paymentHash, paymentRequest string, amountSats int64, expiresAt time.Time) *Intent {
	return &Intent{
		kind:           lightning.KindInvoice,
		paymentHash:    paymentHash,
		paymentRequest: paymentRequest,
		amountSats:     amountSats,
		expiresAt:      expiresAt,
		state:          IntentCreated,
		now:            time.Now,
	}
}

// NewAddressIntent tracks settlement of an on-chain deposit address.
// Address intents have no payment hash and no expiry; they settle on the
// first claimed deposit.
func NewAddressIntent(address string) *Intent {
	return &Intent{
		kind:           lightning.KindAddress,
		paymentRequest: address,
		state:          IntentCreated,
		now:            time.Now,
	}
}

// WithClock overrides the intent clock.
func (i *Intent) WithClock(now func() time.Time) *Intent {
	i.mu.Lock()
	i.now = now
	i.mu.Unlock()
	return i
}

// PaymentRequest returns the tracked invoice or address string.
func (i *Intent) PaymentRequest() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.paymentRequest
}

// State returns the current state, applying expiry lazily.
func (i *Intent) State() IntentState {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.refreshExpiry()
	return i.state
}

// Observe feeds a node event through the state machine and returns the
// resulting state. Expiry is checked first, so a late matching event can
// never resurrect an expired intent.
func (i *Intent) Observe(ev breez.Event) IntentState {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.refreshExpiry()
	if i.state != IntentCreated {
		return i.state
	}
	switch ev.Type {
	case breez.EventPaymentSucceeded:
		if i.kind == lightning.KindInvoice && i.matches(ev.Payment) {
			i.state = IntentSucceeded
		}
	case breez.EventPaymentFailed:
		if i.kind == lightning.KindInvoice && i.matches(ev.Payment) {
			i.state = IntentFailed
		}
	case breez.EventClaimedDeposits:
		if i.kind == lightning.KindAddress && len(ev.ClaimedDeposits) > 0 {
			i.state = IntentSucceeded
		}
	}
	return i.state
}

func (i *Intent) matches(p *breez.Payment) bool {
	return p != nil && i.paymentHash != "" && p.ID == i.paymentHash
}

func (i *Intent) refreshExpiry() {
	if i.state != IntentCreated || i.expiresAt.IsZero() {
		return
	}
	if i.now().After(i.expiresAt) {
		i.state = IntentExpired
	}
}

// IntentTracker keeps at most one active intent per receive flow. Activating
// a new intent discards interest in any previous one's further events.
type IntentTracker struct {
	mu     sync.Mutex
	active *Intent
}

// Activate replaces the tracked intent.
func (t *IntentTracker) Activate(i *Intent) {
	t.mu.Lock()
	t.active = i
	t.mu.Unlock()
}

// Active returns the currently tracked intent, or nil.
func (t *IntentTracker) Active() *Intent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Observe forwards an event to the active intent, if any.
func (t *IntentTracker) Observe(ev breez.Event) {
	if i := t.Active(); i != nil {
		i.Observe(ev)
	}
}
