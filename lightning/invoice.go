package lightning

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcutil/base58"
)

// RequestKind identifies the encoding of a payment request string.
type RequestKind string

const (
	// KindInvoice is a bolt11 Lightning invoice.
	KindInvoice RequestKind = "lightning-invoice"
	// KindAddress is an on-chain bitcoin address.
	KindAddress RequestKind = "onchain-address"
)

// DefaultExpirySecs is the lifetime applied to parsed invoices when the
// request does not carry an explicit expiry.
const DefaultExpirySecs = 3600

// PaymentRequest is the decoded form of a payment request string. It is
// immutable once parsed.
type PaymentRequest struct {
	Kind        RequestKind
	Raw         string
	AmountMsat  int64
	Description string
	CreatedAt   time.Time
	ExpirySecs  int64
}

// AmountSats returns the request amount in whole satoshi.
func (r PaymentRequest) AmountSats() int64 {
	return MsatToSat(r.AmountMsat)
}

// HasAmount reports whether the request carries an embedded amount.
// Zero-amount requests are unsupported by callers that need an amount.
func (r PaymentRequest) HasAmount() bool {
	return r.AmountMsat > 0
}

// IsExpired reports whether the request lifetime elapsed at the given time.
func (r PaymentRequest) IsExpired(now time.Time) bool {
	if r.CreatedAt.IsZero() || r.ExpirySecs <= 0 {
		return false
	}
	return now.After(r.CreatedAt.Add(time.Duration(r.ExpirySecs) * time.Second))
}

var (
	ErrEmptyRequest    = errors.New("lightning: empty payment request")
	ErrMalformed       = errors.New("lightning: invalid payment request format")
	ErrInvoiceTooShort = errors.New("lightning: invoice too short")
	ErrBadCharacters   = errors.New("lightning: request contains invalid characters")
	ErrBadLength       = errors.New("lightning: invalid address length")
)

var (
	invoiceAmountRe = regexp.MustCompile(`^ln(bc|tb|bcrt)(\d+)([munp]?)`)
	bech32CharsRe   = regexp.MustCompile(`^[a-z0-9]+$`)
)

func hasInvoicePrefix(s string) bool {
	return strings.HasPrefix(s, "lnbc") || strings.HasPrefix(s, "lntb") || strings.HasPrefix(s, "lnbcrt")
}

func hasSegwitPrefix(s string) bool {
	return strings.HasPrefix(s, "bc1") || strings.HasPrefix(s, "tb1") || strings.HasPrefix(s, "bcrt1")
}

// Parse decodes a payment request string by shape alone; no signature
// verification is performed. It returns nil when the input matches no known
// encoding. Parsing never panics.
func Parse(raw string) *PaymentRequest {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if cleaned == "" {
		return nil
	}

	if hasInvoicePrefix(cleaned) {
		req := &PaymentRequest{
			Kind:        KindInvoice,
			Raw:         cleaned,
			Description: "Lightning payment",
			CreatedAt:   time.Now(),
			ExpirySecs:  DefaultExpirySecs,
		}
		if m := invoiceAmountRe.FindStringSubmatch(cleaned); m != nil {
			if amount, err := strconv.ParseInt(m[2], 10, 64); err == nil && amount > 0 {
				req.AmountMsat = applyMultiplier(amount, m[3])
			}
		}
		return req
	}

	if Validate(raw) == nil {
		return &PaymentRequest{
			Kind:      KindAddress,
			Raw:       cleaned,
			CreatedAt: time.Now(),
		}
	}
	return nil
}

// applyMultiplier scales a bolt11 amount figure to millisatoshi. The figure
// is denominated in bitcoin; the SI suffix shifts it down. One bitcoin is
// 10^11 msat.
func applyMultiplier(amount int64, multiplier string) int64 {
	switch multiplier {
	case "m":
		return amount * 100_000_000
	case "u":
		return amount * 100_000
	case "n":
		return amount * 100
	case "p":
		return amount / 10
	default:
		return amount * 100_000_000_000
	}
}

// Validate checks a payment request string against the supported encodings
// and returns nil when it is acceptable. The returned error carries a
// human-readable reason.
func Validate(raw string) error {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if cleaned == "" {
		return ErrEmptyRequest
	}
	if len(cleaned) < 10 {
		return ErrMalformed
	}

	if hasInvoicePrefix(cleaned) {
		if len(cleaned) < 20 {
			return ErrInvoiceTooShort
		}
		if !bech32CharsRe.MatchString(cleaned) {
			return ErrBadCharacters
		}
		return nil
	}

	if hasSegwitPrefix(cleaned) {
		if len(cleaned) < 14 || len(cleaned) > 90 {
			return ErrBadLength
		}
		if !bech32CharsRe.MatchString(cleaned) {
			return ErrBadCharacters
		}
		return nil
	}

	// Legacy base58 addresses keep their original casing.
	trimmed := strings.TrimSpace(raw)
	if trimmed[0] == '1' || trimmed[0] == '3' {
		if len(trimmed) < 26 || len(trimmed) > 35 {
			return ErrBadLength
		}
		if len(base58.Decode(trimmed)) == 0 {
			return ErrBadCharacters
		}
		return nil
	}

	return ErrMalformed
}

// Shorten renders a payment request for display, eliding the middle.
func Shorten(raw string, length int) string {
	if length <= 0 {
		length = 20
	}
	if len(raw) <= length {
		return raw
	}
	start := length / 2
	end := length - start
	return raw[:start] + "..." + raw[len(raw)-end:]
}
