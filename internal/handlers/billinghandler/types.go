package billinghandler

import "time"

type createIntentRequest struct {
	PackCode  string `json:"pack_code" validate:"required"`
	AppSource string `json:"app_source" validate:"required"`
}

type createIntentResponse struct {
	IntentID string `json:"intent_id"`
	Status   string `json:"status"`
}

type confirmPaymentRequest struct {
	IntentID  string `json:"intent_id" validate:"required"`
	PackCode  string `json:"pack_code" validate:"required"`
	AppSource string `json:"app_source" validate:"required"`
}

type confirmPaymentResponse struct {
	PurchaseID    string  `json:"purchase_id"`
	EnergyAdded   float64 `json:"energy_added"`
	Bonus         float64 `json:"bonus"`
	BonusApplied  bool    `json:"bonus_applied"`
	CurrentEnergy float64 `json:"current_energy"`
	EventID       string  `json:"event_id"`
}

type purchaseHistoryItem struct {
	EventID         string    `json:"event_id"`
	PackCode        string    `json:"pack_code,omitempty"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	EnergyAdded     float64   `json:"energy_added,omitempty"`
	BonusApplied    bool      `json:"bonus_applied,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type billingHistoryResponse struct {
	Items      []purchaseHistoryItem `json:"items"`
	NextCursor *string               `json:"next_cursor,omitempty"`
	HasMore    bool                  `json:"has_more"`
}
