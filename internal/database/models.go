package database

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Direction tells whether a conversation entry came from the user or the bot.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ConversationEntry is one line of a user's chat history. Entries are
// append-only and ordered by ID.
type ConversationEntry struct {
	ID        int64     `db:"id"        json:"id"`
	UserID    string    `db:"user_id"   json:"user_id"`
	Direction Direction `db:"direction" json:"direction"`
	Text      string    `db:"text"      json:"text"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	StatusInitiated PaymentStatus = "initiated"
	StatusSuccess   PaymentStatus = "success"
	StatusFailed    PaymentStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusInitiated, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is expected.
func (s PaymentStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// PaymentRecord tracks one STK push from initiation to callback.
// CheckoutRequestID is the correlation key; it is empty only for orphans
// whose callback carried no id.
type PaymentRecord struct {
	ID                   int64         `db:"id"                     json:"id"`
	MerchantRequestID    string        `db:"merchant_request_id"    json:"merchant_request_id"`
	CheckoutRequestID    string        `db:"checkout_request_id"    json:"checkout_request_id"`
	Phone                string        `db:"phone"                  json:"phone"`
	Amount               string        `db:"amount"                 json:"amount"`
	Status               PaymentStatus `db:"status"                 json:"status"`
	ResultCode           string        `db:"result_code"            json:"result_code"`
	ResultDesc           string        `db:"result_desc"            json:"result_desc"`
	ReceiptNumber        string        `db:"receipt_number"         json:"receipt_number"`
	TransactionDate      string        `db:"transaction_date"       json:"transaction_date"`
	RawInitiationPayload string        `db:"raw_initiation_payload" json:"raw_initiation_payload,omitempty"`
	RawCallbackPayload   string        `db:"raw_callback_payload"   json:"raw_callback_payload,omitempty"`
	Orphan               bool          `db:"orphan"                 json:"orphan"`
	CreatedAt            time.Time     `db:"created_at"             json:"created_at"`
	UpdatedAt            time.Time     `db:"updated_at"             json:"updated_at"`
}
