package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// FoodCard is the stored-value balance of one user. The balance is mutated
// only through the ledger repository's atomic credit/debit and is never
// allowed below zero.
//
// Storage model (DynamoDB):
//   - PK: user_id

type FoodCard struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// FoodCardEntryType marks the direction of a ledger entry.

type FoodCardEntryType string

const (
	FoodCardEntryCredit FoodCardEntryType = "CREDIT"
	FoodCardEntryDebit  FoodCardEntryType = "DEBIT"
)

// FoodCardEntry is one applied balance movement, keyed by the caller's
// idempotency reference. The entry row doubles as the dedupe record: a
// reference that already has an entry is not applied again.
//
// Storage model (DynamoDB):
//   - PK: reference
//   - GSI1 (user_id-index): user_id

type FoodCardEntry struct {
	Reference string            `json:"reference"`
	UserID    string            `json:"user_id"`
	Type      FoodCardEntryType `json:"entry_type"`
	Amount    decimal.Decimal   `json:"amount"`
	CreatedAt time.Time         `json:"created_at"`
}
