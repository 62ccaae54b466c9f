// Package energy implements the Energy Ledger: the metered,
// refundable virtual currency that gates every satellite action, backed by a
// transactional consume/refund/purchase contract tied to the event log.
package energy

import (
	"time"

	"github.com/google/uuid"
)

// MaxEnergySentinel denotes an effectively unlimited max_energy (sentinel
// value ≥999).
const MaxEnergySentinel = 999999.0

// Subscription types.
const (
	PlanFree      = "free"
	PlanPremium   = "premium"
	PlanUnlimited = "unlimited"
)

// Transaction action types.
const (
	ActionConsume  = "consume"
	ActionRefund   = "refund"
	ActionPurchase = "purchase"
)

// UserEnergy is the per-user balance row, exclusively owned and mutated by
// the Energy Ledger.
type UserEnergy struct {
	UserID           uuid.UUID
	CurrentEnergy    float64
	MaxEnergy        float64
	TotalConsumed    float64
	TotalPurchased   float64
	SubscriptionType string
	UpdatedAt        time.Time
}

// IsUnlimited reports whether the user's subscription bypasses metering.
func (u UserEnergy) IsUnlimited() bool {
	return u.SubscriptionType == PlanUnlimited
}

// Percentage returns current_energy as a fraction of max_energy, clamped to
// [0, 1]. Unlimited users always report 1.
func (u UserEnergy) Percentage() float64 {
	if u.IsUnlimited() || u.MaxEnergy <= 0 {
		return 1
	}
	pct := u.CurrentEnergy / u.MaxEnergy
	if pct > 1 {
		return 1
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// EnergyTransaction is an append-only ledger entry recording one
// consume/refund/purchase mutation.
type EnergyTransaction struct {
	TransactionID uuid.UUID
	UserID        uuid.UUID
	ActionType    string
	Amount        float64
	Reason        string
	EnergyBefore  float64
	EnergyAfter   float64
	Context       map[string]any
	CreatedAt     time.Time
}

// BalanceSnapshot is the result of check_balance.
type BalanceSnapshot struct {
	Current         float64
	Max             float64
	Percentage      float64
	CanPerformBasic bool
}

// Affordability is the result of can_perform.
type Affordability struct {
	CanPerform bool
	Required   float64
	Current    float64
	Deficit    float64
	Unlimited  bool
	Plan       string
}

// ConsumeResult is the result of consume.
type ConsumeResult struct {
	TransactionID uuid.UUID
	Consumed      float64
	Remaining     float64
	EventID       uuid.UUID
	Unlimited     bool
}

// RefundResult is the result of refund.
type RefundResult struct {
	TransactionID uuid.UUID
	Refunded      float64
	NewBalance    float64
	EventID       uuid.UUID
}

// PurchaseResult is the result of purchase.
type PurchaseResult struct {
	PurchaseID     uuid.UUID
	EnergyAdded    float64
	Bonus          float64
	BonusApplied   bool
	CurrentEnergy  float64
	EventID        uuid.UUID
}
