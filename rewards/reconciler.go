package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"satspay/lightning"
	"satspay/observability"
)

// PendingReward is one unclaimed credit in a pending summary.
type PendingReward struct {
	RewardEventID uuid.UUID `json:"rewardEventId"`
	RewardID      uuid.UUID `json:"rewardId"`
	ContentID     uuid.UUID `json:"contentId"`
	ContentTitle  string    `json:"contentTitle"`
	ContentType   string    `json:"contentType"`
	AmountSats    int64     `json:"amountSats"`
}

// PendingSummary aggregates a student's unclaimed credits.
type PendingSummary struct {
	TotalSats int64           `json:"totalSats"`
	Rewards   []PendingReward `json:"rewards"`
}

// Reconciler converts accumulated reward credits into settlement attempts,
// guaranteeing at most one outstanding claim per student and that a reward
// event pays out at most once.
type Reconciler struct {
	db      *gorm.DB
	log     *slog.Logger
	metrics *observability.ClaimMetrics
	now     func() time.Time
}

// ReconcilerOption customises the reconciler.
type ReconcilerOption func(*Reconciler)

// WithLogger supplies the reconciler logger.
func WithLogger(log *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.log = log }
}

// WithClock sets the function used to derive timestamps.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler builds a reconciler over the rewards schema.
func NewReconciler(db *gorm.DB, opts ...ReconcilerOption) (*Reconciler, error) {
	if db == nil {
		return nil, errors.New("rewards: db is required")
	}
	r := &Reconciler{
		db:      db,
		log:     slog.Default(),
		metrics: observability.Claims(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Reconciler) student(ctx context.Context, email string) (*Student, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return nil, ErrStudentNotFound
	}
	var student Student
	err := r.db.WithContext(ctx).Where("email = ?", normalized).First(&student).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("rewards: load student: %w", err)
	}
	return &student, nil
}

// settledElsewhere reports whether the event is referenced by a settled
// claim. Outstanding claims do not hide the event from the pending list;
// that gate applies only at claim time.
func settledElsewhere(event RewardEvent) bool {
	for _, claim := range event.Claims {
		if claim.Status == ClaimSettled {
			return true
		}
	}
	return false
}

// ListPending returns the student's claimable credits and their total.
func (r *Reconciler) ListPending(ctx context.Context, email string) (*PendingSummary, error) {
	student, err := r.student(ctx, email)
	if err != nil {
		return nil, err
	}
	var events []RewardEvent
	err = r.db.WithContext(ctx).
		Preload("Reward.Content").
		Preload("Claims").
		Where("student_id = ?", student.ID).
		Order("created_at").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("rewards: load reward events: %w", err)
	}

	summary := &PendingSummary{Rewards: make([]PendingReward, 0, len(events))}
	for _, event := range events {
		if !event.Reward.Active || settledElsewhere(event) {
			continue
		}
		summary.Rewards = append(summary.Rewards, PendingReward{
			RewardEventID: event.ID,
			RewardID:      event.RewardID,
			ContentID:     event.Reward.ContentID,
			ContentTitle:  event.Reward.Content.Title,
			ContentType:   event.Reward.Content.ContentType,
			AmountSats:    event.Reward.AmountSats,
		})
		summary.TotalSats += event.Reward.AmountSats
	}
	return summary, nil
}

// Claim batches the supplied reward events into one ClaimPayment row. The
// row references the first supplied claimable reward event and stores the
// caller's invoice for audit. A student with an outstanding claim cannot
// start another.
func (r *Reconciler) Claim(ctx context.Context, email string, rewardEventIDs []uuid.UUID, paymentRequest string) (*ClaimPayment, error) {
	if len(rewardEventIDs) == 0 {
		return nil, ErrEmptyRewardSet
	}
	if err := lightning.Validate(paymentRequest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvoice, err)
	}
	student, err := r.student(ctx, email)
	if err != nil {
		return nil, err
	}

	var outstanding int64
	err = r.db.WithContext(ctx).Model(&ClaimPayment{}).
		Where("student_id = ? AND status IN ?", student.ID, []ClaimStatus{ClaimCreated, ClaimPending}).
		Count(&outstanding).Error
	if err != nil {
		return nil, fmt.Errorf("rewards: check outstanding claims: %w", err)
	}
	if outstanding > 0 {
		return nil, ErrAlreadyClaiming
	}

	var events []RewardEvent
	err = r.db.WithContext(ctx).
		Preload("Reward").
		Preload("Claims").
		Where("student_id = ? AND id IN ?", student.ID, rewardEventIDs).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("rewards: load reward events: %w", err)
	}

	claimable := make(map[uuid.UUID]RewardEvent, len(events))
	for _, event := range events {
		if event.Reward.Active && !settledElsewhere(event) {
			claimable[event.ID] = event
		}
	}
	if len(claimable) == 0 {
		return nil, ErrNoClaimableRewards
	}

	var totalSats int64
	var firstEventID uuid.UUID
	for _, id := range rewardEventIDs {
		event, ok := claimable[id]
		if !ok {
			continue
		}
		if firstEventID == uuid.Nil {
			firstEventID = id
		}
		totalSats += event.Reward.AmountSats
	}
	if totalSats <= 0 {
		return nil, ErrNoClaimableRewards
	}

	now := r.now().UTC()
	claim := &ClaimPayment{
		ID:            uuid.New(),
		StudentID:     student.ID,
		RewardEventID: firstEventID,
		AmountSats:    totalSats,
		Status:        ClaimCreated,
		InvoiceBolt11: strings.TrimSpace(paymentRequest),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.db.WithContext(ctx).Create(claim).Error; err != nil {
		return nil, fmt.Errorf("rewards: create claim: %w", err)
	}
	r.metrics.RecordClaim(string(ClaimCreated))
	r.log.Info("claim created",
		"student", student.ID.String(),
		"claim", claim.ID.String(),
		"amount_sats", totalSats,
		"events", len(claimable),
	)
	return claim, nil
}

// ClaimStatus returns the status of the student's most recent claim.
func (r *Reconciler) ClaimStatus(ctx context.Context, email string) (ClaimStatus, error) {
	student, err := r.student(ctx, email)
	if err != nil {
		return "", err
	}
	var claim ClaimPayment
	err = r.db.WithContext(ctx).
		Where("student_id = ?", student.ID).
		Order("created_at DESC").
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNoClaims
	}
	if err != nil {
		return "", fmt.Errorf("rewards: load claim: %w", err)
	}
	return claim.Status, nil
}

// LatestOutstanding returns the student's claim awaiting payout, or
// ErrClaimNotFound when none is outstanding.
func (r *Reconciler) LatestOutstanding(ctx context.Context, email string) (*ClaimPayment, error) {
	student, err := r.student(ctx, email)
	if err != nil {
		return nil, err
	}
	var claim ClaimPayment
	err = r.db.WithContext(ctx).
		Where("student_id = ? AND status IN ?", student.ID, []ClaimStatus{ClaimCreated, ClaimPending}).
		Order("created_at DESC").
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("rewards: load claim: %w", err)
	}
	return &claim, nil
}

func (r *Reconciler) transition(ctx context.Context, claimID uuid.UUID, from []ClaimStatus, to ClaimStatus, paymentID string) error {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": r.now().UTC(),
	}
	if paymentID != "" {
		updates["payment_id"] = paymentID
	}
	res := r.db.WithContext(ctx).Model(&ClaimPayment{}).
		Where("id = ? AND status IN ?", claimID, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("rewards: update claim: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrClaimNotFound
	}
	r.metrics.RecordClaim(string(to))
	return nil
}

// MarkDispatched moves a created claim to pending once its payout payment
// has been handed to the node.
func (r *Reconciler) MarkDispatched(ctx context.Context, claimID uuid.UUID, paymentID string) error {
	return r.transition(ctx, claimID, []ClaimStatus{ClaimCreated}, ClaimPending, paymentID)
}

// MarkFailed records a failed payout; the claim no longer blocks new ones.
func (r *Reconciler) MarkFailed(ctx context.Context, claimID uuid.UUID) error {
	return r.transition(ctx, claimID, []ClaimStatus{ClaimCreated, ClaimPending}, ClaimFailed, "")
}

// SettleByPaymentID settles the claim whose payout matches the node payment
// identifier. Used by the settlement observer.
func (r *Reconciler) SettleByPaymentID(ctx context.Context, paymentID string) error {
	if strings.TrimSpace(paymentID) == "" {
		return ErrClaimNotFound
	}
	var claim ClaimPayment
	err := r.db.WithContext(ctx).
		Where("payment_id = ? AND status = ?", paymentID, ClaimPending).
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrClaimNotFound
	}
	if err != nil {
		return fmt.Errorf("rewards: load claim: %w", err)
	}
	return r.transition(ctx, claim.ID, []ClaimStatus{ClaimPending}, ClaimSettled, "")
}

// FailByPaymentID fails the claim whose payout matches the node payment
// identifier.
func (r *Reconciler) FailByPaymentID(ctx context.Context, paymentID string) error {
	if strings.TrimSpace(paymentID) == "" {
		return ErrClaimNotFound
	}
	var claim ClaimPayment
	err := r.db.WithContext(ctx).
		Where("payment_id = ? AND status = ?", paymentID, ClaimPending).
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrClaimNotFound
	}
	if err != nil {
		return fmt.Errorf("rewards: load claim: %w", err)
	}
	return r.transition(ctx, claim.ID, []ClaimStatus{ClaimPending}, ClaimFailed, "")
}
