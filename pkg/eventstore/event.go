// Package eventstore implements the append-only, immutable event log:
// the canonical narrative unit consumed by the Rate Limiter's audit fallback,
// the Energy Ledger's atomic transactions, the Token Service's session
// lifecycle, and the Narrative Analyzer.
package eventstore

import (
	"time"

	"github.com/google/uuid"
)

// Known event types.
const (
	TypeEnergyActionPerformed = "EnergyActionPerformed"
	TypeEnergyPurchased       = "EnergyPurchased"
	TypeEnergyRefunded        = "EnergyRefunded"
	TypeBillingIntentCreated  = "BillingIntentCreated"
	TypeNarrativeStarted      = "NarrativeStarted"
	TypeLoginSucceeded        = "login_succeeded"
	TypeLoginFailed           = "login_failed"
	TypeSessionCreated        = "session_created"
	TypeSessionRevoked        = "session_revoked"
	TypeRateLimited           = "rate_limited"
	TypeCVAnalyzed            = "cv_analyzed"
	TypeLetterDrafted         = "letter_drafted"
	TypeOnboardingFeedback    = "onboarding_feedback"
	TypeAppOpened             = "app_opened"
)

// MaxEventDataBytes bounds the size of the opaque event_data payload: fields
// crossing the trust boundary are size-capped.
const MaxEventDataBytes = 5 * 1024

// Event is a single immutable record of something that happened to a user.
type Event struct {
	EventID   uuid.UUID      `json:"event_id"`
	UserID    uuid.UUID      `json:"user_id"`
	EventType string         `json:"event_type"`
	AppSource string         `json:"app_source"`
	EventData map[string]any `json:"event_data"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}
