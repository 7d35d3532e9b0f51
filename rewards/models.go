package rewards

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClaimStatus is the lifecycle of one claim payment.
type ClaimStatus string

const (
	ClaimCreated ClaimStatus = "created"
	ClaimPending ClaimStatus = "pending"
	ClaimSettled ClaimStatus = "settled"
	ClaimFailed  ClaimStatus = "failed"
)

// Outstanding reports whether the claim blocks a new claim batch.
func (s ClaimStatus) Outstanding() bool {
	return s == ClaimCreated || s == ClaimPending
}

// Student is the subject earning rewards, keyed by email.
type Student struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email     string    `gorm:"uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Content is the course or challenge a reward is attached to.
type Content struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Title       string    `gorm:"size:255"`
	ContentType string    `gorm:"size:32"`
	CreatedAt   time.Time
}

// Reward defines a payable amount for completing a piece of content.
// Inactive rewards are never claimable.
type Reward struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ContentID  uuid.UUID `gorm:"type:uuid;index"`
	AmountSats int64     `gorm:"not null"`
	Active     bool      `gorm:"index"`
	CreatedAt  time.Time
	Content    Content
}

// RewardEvent records one earned credit for a student.
type RewardEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	StudentID uuid.UUID `gorm:"type:uuid;index"`
	RewardID  uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt time.Time
	Reward    Reward
	Claims    []ClaimPayment `gorm:"foreignKey:RewardEventID"`
}

// ClaimPayment joins a batch of reward events to one settlement attempt.
// The batch is tracked as a single row referencing the first reward event.
type ClaimPayment struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey"`
	StudentID     uuid.UUID   `gorm:"type:uuid;index"`
	RewardEventID uuid.UUID   `gorm:"type:uuid;index"`
	AmountSats    int64       `gorm:"not null"`
	Status        ClaimStatus `gorm:"size:16;index"`
	InvoiceBolt11 string      `gorm:"type:text"`
	// PaymentID is the node payment identifier once a payout is dispatched.
	PaymentID string `gorm:"size:128;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AutoMigrate creates or updates the rewards schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Student{},
		&Content{},
		&Reward{},
		&RewardEvent{},
		&ClaimPayment{},
	)
}
