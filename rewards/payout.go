package rewards

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"satspay/breez"
	"satspay/wallet"
)

// PayoutSender is the wallet operation the payout path depends on.
type PayoutSender interface {
	SendPayment(ctx context.Context, paymentRequest string) (*wallet.PaymentRecord, error)
}

// Payout drives one outstanding claim through settlement: the stored invoice
// is paid via the node and the claim moves to pending until the settlement
// observer sees the matching payment event. A payout failure marks the claim
// failed so the student can claim again.
func (r *Reconciler) Payout(ctx context.Context, sender PayoutSender, email string) (*ClaimPayment, error) {
	if sender == nil {
		return nil, errors.New("rewards: payout sender required")
	}
	claim, err := r.LatestOutstanding(ctx, email)
	if err != nil {
		return nil, err
	}
	if claim.Status != ClaimCreated {
		return nil, ErrAlreadyClaiming
	}
	record, err := sender.SendPayment(ctx, claim.InvoiceBolt11)
	if err != nil {
		if markErr := r.MarkFailed(ctx, claim.ID); markErr != nil {
			r.log.Error("mark claim failed", "claim", claim.ID.String(), "err", markErr)
		}
		return nil, err
	}
	if err := r.MarkDispatched(ctx, claim.ID, record.ID); err != nil {
		return nil, err
	}
	claim.Status = ClaimPending
	claim.PaymentID = record.ID
	r.log.Info("claim payout dispatched", "claim", claim.ID.String(), "payment", record.ID)
	return claim, nil
}

// SettlementObserver closes the loop between node payment events and claim
// rows. Register it on the wallet dispatcher.
type SettlementObserver struct {
	reconciler *Reconciler
	log        *slog.Logger
	timeout    time.Duration
}

// NewSettlementObserver builds an observer over the reconciler.
func NewSettlementObserver(reconciler *Reconciler, log *slog.Logger) *SettlementObserver {
	if log == nil {
		log = slog.Default()
	}
	return &SettlementObserver{reconciler: reconciler, log: log, timeout: 10 * time.Second}
}

// HandleEvent reconciles payment outcomes against pending claims. Events
// that match no claim are ignored.
func (o *SettlementObserver) HandleEvent(ev breez.Event) {
	if ev.Payment == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	switch ev.Type {
	case breez.EventPaymentSucceeded:
		err := o.reconciler.SettleByPaymentID(ctx, ev.Payment.ID)
		if err != nil && !errors.Is(err, ErrClaimNotFound) {
			o.log.Error("settle claim", "payment", ev.Payment.ID, "err", err)
		}
	case breez.EventPaymentFailed:
		err := o.reconciler.FailByPaymentID(ctx, ev.Payment.ID)
		if err != nil && !errors.Is(err, ErrClaimNotFound) {
			o.log.Error("fail claim", "payment", ev.Payment.ID, "err", err)
		}
	}
}
