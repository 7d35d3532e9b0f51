package wallet

import "time"

// Balance is the node balance snapshot, derived fresh from the node subject
// to the service's short staleness window.
type Balance struct {
	TotalSats      int64 `json:"totalSats"`
	SpendableSats  int64 `json:"spendableSats"`
	ReceivableSats int64 `json:"receivableSats"`
}

// Direction of a settled or in-flight payment.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// PaymentStatus is the three-state model the orchestrator exposes. Any node
// status other than completed or pending collapses to failed so unseen node
// states stay safe.
type PaymentStatus string

const (
	PaymentComplete PaymentStatus = "complete"
	PaymentPending  PaymentStatus = "pending"
	PaymentFailed   PaymentStatus = "failed"
)

// PaymentRecord is the orchestrator's read-only view of a node payment.
type PaymentRecord struct {
	ID          string        `json:"id"`
	Direction   Direction     `json:"direction"`
	AmountMsat  int64         `json:"amountMsat"`
	FeeMsat     int64         `json:"feeMsat"`
	Status      PaymentStatus `json:"status"`
	Timestamp   time.Time     `json:"timestamp"`
	Description string        `json:"description,omitempty"`
	Invoice     string        `json:"invoice,omitempty"`
	Preimage    string        `json:"preimage,omitempty"`
}

// Invoice is a freshly created receive request.
type Invoice struct {
	PaymentRequest string    `json:"paymentRequest"`
	PaymentHash    string    `json:"paymentHash"`
	AmountSats     int64     `json:"amountSats"`
	Description    string    `json:"description"`
	FeeSats        int64     `json:"feeSats"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Address is a freshly created on-chain deposit address.
type Address struct {
	Address string `json:"address"`
	FeeSats int64  `json:"feeSats"`
}
