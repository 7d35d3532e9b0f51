package rewards

import "errors"

var (
	ErrStudentNotFound    = errors.New("rewards: student not found")
	ErrEmptyRewardSet     = errors.New("rewards: reward event ids required")
	ErrInvalidInvoice     = errors.New("rewards: invalid payment request")
	ErrNoClaimableRewards = errors.New("rewards: no claimable rewards found")
	ErrAlreadyClaiming    = errors.New("rewards: a claim is already outstanding")
	ErrNoClaims           = errors.New("rewards: no claims recorded")
	ErrClaimNotFound      = errors.New("rewards: claim not found")
)
