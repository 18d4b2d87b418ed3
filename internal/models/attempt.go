package models

import "time"

// Outcome classifies a logged attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "SUCCESS"
	OutcomeBlocked   Outcome = "BLOCKED"
	OutcomeError     Outcome = "ERROR"
	OutcomeExhausted Outcome = "EXHAUSTED"
	OutcomeCancelled Outcome = "CANCELLED"
	OutcomeInfo      Outcome = "INFO"
)

// AttemptLog is one append-only entry of the event log.
type AttemptLog struct {
	Timestamp time.Time `json:"timestamp"`
	SKU       string    `json:"sku"`
	Retailer  Retailer  `json:"retailer"`
	Attempt   int       `json:"attempt,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail"`
}
