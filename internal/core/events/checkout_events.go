package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeSessionSaved      = "checkout.session_saved"
	EventTypeSessionCleared    = "checkout.session_cleared"
	EventTypeInitiationFailed  = "checkout.initiation_failed"
	EventTypeCardConfirmed     = "checkout.card_confirmed"
	EventTypeSettled           = "checkout.settled"
	EventTypeSettlementFailed  = "checkout.settlement_failed"
	EventTypeOutcomeReconciled = "checkout.outcome_reconciled"
)

// AllCheckoutEventTypes lists every type published by the checkout flows.
var AllCheckoutEventTypes = []string{
	EventTypeSessionSaved,
	EventTypeSessionCleared,
	EventTypeInitiationFailed,
	EventTypeCardConfirmed,
	EventTypeSettled,
	EventTypeSettlementFailed,
	EventTypeOutcomeReconciled,
}

type SessionSavedEvent struct {
	BaseEvent
	ProfileID       string `json:"profile_id"`
	ReferenceID     string `json:"reference_id"`
	Method          string `json:"method"`
	IntegrationType string `json:"integration_type"`
	Amount          int64  `json:"amount"`
}

func NewSessionSavedEvent(profileID, referenceID, method, integrationType string, amount int64) *SessionSavedEvent {
	return &SessionSavedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeSessionSaved,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"profile_id":       profileID,
				"reference_id":     referenceID,
				"method":           method,
				"integration_type": integrationType,
				"amount":           amount,
			},
		},
		ProfileID:       profileID,
		ReferenceID:     referenceID,
		Method:          method,
		IntegrationType: integrationType,
		Amount:          amount,
	}
}

type SessionClearedEvent struct {
	BaseEvent
	ProfileID string `json:"profile_id"`
	Reason    string `json:"reason"`
}

func NewSessionClearedEvent(profileID, reason string) *SessionClearedEvent {
	return &SessionClearedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeSessionCleared,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"profile_id": profileID,
				"reason":     reason,
			},
		},
		ProfileID: profileID,
		Reason:    reason,
	}
}

type InitiationFailedEvent struct {
	BaseEvent
	Method          string `json:"method"`
	IntegrationType string `json:"integration_type"`
	ErrorType       string `json:"error_type"`
}

func NewInitiationFailedEvent(method, integrationType, errorType string) *InitiationFailedEvent {
	return &InitiationFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeInitiationFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"method":           method,
				"integration_type": integrationType,
				"error_type":       errorType,
			},
		},
		Method:          method,
		IntegrationType: integrationType,
		ErrorType:       errorType,
	}
}

type CardConfirmedEvent struct {
	BaseEvent
	ReferenceID     string `json:"reference_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	Amount          int64  `json:"amount"`
}

func NewCardConfirmedEvent(referenceID, paymentIntentID string, amount int64) *CardConfirmedEvent {
	return &CardConfirmedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeCardConfirmed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"reference_id":      referenceID,
				"payment_intent_id": paymentIntentID,
				"amount":            amount,
			},
		},
		ReferenceID:     referenceID,
		PaymentIntentID: paymentIntentID,
		Amount:          amount,
	}
}

// SettlementEvent reports the backend confirmation of a card payment; FailureReason is set
// only for EventTypeSettlementFailed.
type SettlementEvent struct {
	BaseEvent
	ReferenceID     string `json:"reference_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	FailureReason   string `json:"failure_reason,omitempty"`
}

func NewSettlementEvent(referenceID, paymentIntentID string, failure error) *SettlementEvent {
	eventType := EventTypeSettled
	data := map[string]interface{}{
		"reference_id":      referenceID,
		"payment_intent_id": paymentIntentID,
	}
	var reason string
	if failure != nil {
		eventType = EventTypeSettlementFailed
		reason = failure.Error()
		data["failure_reason"] = reason
	}
	return &SettlementEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data:      data,
		},
		ReferenceID:     referenceID,
		PaymentIntentID: paymentIntentID,
		FailureReason:   reason,
	}
}

type OutcomeReconciledEvent struct {
	BaseEvent
	Status       string `json:"status"`
	Route        string `json:"route"`
	Method       string `json:"method"`
	ReferenceID  string `json:"reference_id"`
	StaleSession bool   `json:"stale_session"`
}

func NewOutcomeReconciledEvent(status, route, method, referenceID string, stale bool) *OutcomeReconciledEvent {
	return &OutcomeReconciledEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeOutcomeReconciled,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"status":        status,
				"route":         route,
				"method":        method,
				"reference_id":  referenceID,
				"stale_session": stale,
			},
		},
		Status:       status,
		Route:        route,
		Method:       method,
		ReferenceID:  referenceID,
		StaleSession: stale,
	}
}
