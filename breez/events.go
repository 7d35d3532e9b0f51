package breez

// EventType tags the variants of the node event union.
type EventType string

const (
	EventSynced            EventType = "synced"
	EventDataSynced        EventType = "dataSynced"
	EventUnclaimedDeposits EventType = "unclaimedDeposits"
	EventClaimedDeposits   EventType = "claimedDeposits"
	EventPaymentSucceeded  EventType = "paymentSucceeded"
	EventPaymentPending    EventType = "paymentPending"
	EventPaymentFailed     EventType = "paymentFailed"
)

// DepositInfo describes an on-chain deposit the node observed.
type DepositInfo struct {
	TxID       string `json:"txId"`
	AmountSats int64  `json:"amount"`
}

// Event is the tagged union delivered on the node event stream. Only the
// fields matching Type are populated.
type Event struct {
	Type              EventType     `json:"type"`
	DidPullNewRecords bool          `json:"didPullNewRecords,omitempty"`
	UnclaimedDeposits []DepositInfo `json:"unclaimedDeposits,omitempty"`
	ClaimedDeposits   []DepositInfo `json:"claimedDeposits,omitempty"`
	Payment           *Payment      `json:"payment,omitempty"`
}
