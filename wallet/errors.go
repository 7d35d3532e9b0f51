package wallet

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks fatal configuration gaps (missing API key or
	// seed). Callers must not retry.
	ErrConfiguration = errors.New("wallet: configuration error")
	// ErrConnection marks transient connect failures; callers may retry.
	ErrConnection = errors.New("wallet: node connection failed")
	// ErrNotReady is returned when an operation is attempted before a
	// connection is established.
	ErrNotReady = errors.New("wallet: node not ready")
	// ErrValidation covers malformed payment requests and zero or negative
	// amounts. Resolved locally, never sent to the node.
	ErrValidation = errors.New("wallet: validation error")

	ErrInsufficientCapacity = errors.New("wallet: insufficient receiving capacity")
	ErrInsufficientBalance  = errors.New("wallet: insufficient balance")
	ErrNoRoute              = errors.New("wallet: no route to destination")
	ErrTimeout              = errors.New("wallet: payment timed out")
	ErrInvoiceInvalid       = errors.New("wallet: invoice expired or invalid")
)

// classifyReceive maps node invoice-creation failures onto the domain
// taxonomy. Unrecognised node errors keep their text as a fallback only.
func classifyReceive(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "amount"):
		return fmt.Errorf("%w: invalid amount", ErrValidation)
	case strings.Contains(msg, "capacity"):
		return ErrInsufficientCapacity
	}
	return fmt.Errorf("wallet: create invoice: %w", err)
}

// classifySend maps prepare/execute failures onto the domain taxonomy.
func classifySend(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient"):
		return ErrInsufficientBalance
	case strings.Contains(msg, "route"):
		return ErrNoRoute
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return ErrTimeout
	case strings.Contains(msg, "invoice"):
		return ErrInvoiceInvalid
	}
	return fmt.Errorf("wallet: send payment: %w", err)
}
