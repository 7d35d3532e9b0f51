package breez

import (
	"context"
	"errors"
	"strings"
)

// Network selects which chain the node operates on.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkRegtest Network = "regtest"
)

// ParseNetwork normalises a configured network name.
func ParseNetwork(raw string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mainnet", "":
		return NetworkMainnet, nil
	case "regtest":
		return NetworkRegtest, nil
	default:
		return "", errors.New("breez: unknown network " + raw)
	}
}

// ConnectRequest carries the material required to establish a node session.
type ConnectRequest struct {
	Network  Network
	APIKey   string
	Mnemonic string
	// Passphrase is optional seed hardening on top of the mnemonic.
	Passphrase string
	StorageDir string
}

// Info is the node state snapshot returned by GetInfo.
type Info struct {
	NodeID            string `json:"nodeId"`
	BalanceSats       int64  `json:"balanceSats"`
	MaxReceivableSats int64  `json:"maxReceivableSats"`
	Synced            bool   `json:"synced"`
}

// Receive payment methods supported by the node.
const (
	ReceiveMethodBolt11  = "bolt11Invoice"
	ReceiveMethodAddress = "bitcoinAddress"
)

// ReceiveRequest asks the node for a new invoice or deposit address.
type ReceiveRequest struct {
	Method      string `json:"paymentMethod"`
	Description string `json:"description,omitempty"`
	AmountSats  int64  `json:"amountSats,omitempty"`
}

// ReceiveResponse is the node's answer to a receive request. For bolt11 the
// payment request is the invoice; for addresses it is the address itself.
type ReceiveResponse struct {
	PaymentRequest string `json:"paymentRequest"`
	PaymentID      string `json:"paymentId,omitempty"`
	FeeSats        int64  `json:"feeSats,omitempty"`
}

// PrepareSendResponse holds the routing and fee figures computed before a
// payment is executed. It must be passed unchanged to SendPayment.
type PrepareSendResponse struct {
	PaymentRequest   string `json:"paymentRequest"`
	LightningFeeSats int64  `json:"lightningFeeSats"`
	TransferFeeSats  int64  `json:"transferFeeSats,omitempty"`
}

// Payment is a node-owned settlement record. The orchestrator only reads it.
type Payment struct {
	ID          string `json:"id"`
	Type        string `json:"paymentType"`
	Timestamp   int64  `json:"timestamp"`
	AmountSats  int64  `json:"amount"`
	FeeSats     int64  `json:"fees"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	Invoice     string `json:"invoice,omitempty"`
	Preimage    string `json:"preimage,omitempty"`
}

// SDK is the operation surface of one live node session. Implementations own
// the transport; callers own timeout policy through ctx.
type SDK interface {
	GetInfo(ctx context.Context) (*Info, error)
	ReceivePayment(ctx context.Context, req ReceiveRequest) (*ReceiveResponse, error)
	PrepareSendPayment(ctx context.Context, paymentRequest string) (*PrepareSendResponse, error)
	SendPayment(ctx context.Context, prepared *PrepareSendResponse) (*Payment, error)
	ListPayments(ctx context.Context) ([]Payment, error)
	AddEventListener(ctx context.Context, fn func(Event)) (string, error)
	Disconnect(ctx context.Context) error
}

// Connector establishes node sessions. Exactly one session should be live
// per process; the wallet service enforces that invariant.
type Connector interface {
	Connect(ctx context.Context, req ConnectRequest) (SDK, error)
}
