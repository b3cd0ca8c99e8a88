package models

import (
	"time"
)

// IntentState represents the lifecycle state of a payment intent.
type IntentState string

const (
	StatePending       IntentState = "pending"
	StatePartiallyPaid IntentState = "partially_paid"
	StateFullyPaid     IntentState = "fully_paid"
	StateExpired       IntentState = "expired"
	StateCanceled      IntentState = "canceled"
	StateDone          IntentState = "done"
)

// Terminal reports whether the state permits no further transitions.
func (s IntentState) Terminal() bool {
	return s == StateDone || s == StateCanceled || s == StateExpired
}

// PaymentIntent represents an expected incoming payment tied to one order
// and one destination subaddress.
//
// ExpectedAmount and ExchangeRate are fixed at creation time from the order
// total and a rate snapshot; they never change afterwards, even if the live
// rate moves. All amounts are in atomic units.
type PaymentIntent struct {
	ID                    string      `json:"id"`
	OrderID               string      `json:"order_id"`
	DestinationAddress    string      `json:"destination_address"`
	AccountIndex          uint64      `json:"account_index"`
	SubaddressIndex       uint64      `json:"subaddress_index"`
	ExpectedAmount        uint64      `json:"expected_amount"`
	AmountPaid            uint64      `json:"amount_paid"`
	ExchangeRate          float64     `json:"exchange_rate"`
	FiatCurrency          string      `json:"fiat_currency"`
	RequiredConfirmations uint64      `json:"required_confirmations"`
	State                 IntentState `json:"state"`
	CreatedAt             time.Time   `json:"created_at"`
	ExpiresAt             time.Time   `json:"expires_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// Expired reports whether the intent's payment window has closed at the
// given instant.
func (p *PaymentIntent) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// FullyPaid reports whether the observed payment covers the expected amount.
func (p *PaymentIntent) FullyPaid() bool {
	return p.AmountPaid >= p.ExpectedAmount
}

// AmountRemaining returns how much is still owed, in atomic units.
func (p *PaymentIntent) AmountRemaining() uint64 {
	if p.AmountPaid >= p.ExpectedAmount {
		return 0
	}
	return p.ExpectedAmount - p.AmountPaid
}
