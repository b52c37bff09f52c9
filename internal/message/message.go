package message

import "time"

// PaymentVerified is emitted for every webhook notification that passed
// signature verification with a paid status. An order ledger downstream
// consumes these.
type PaymentVerified struct {
	OrderID       string    `json:"orderId"`
	TransactionID string    `json:"transactionId,omitempty"`
	PackageKey    string    `json:"packageKey,omitempty"`
	TotalFee      string    `json:"totalFee"`
	PaidAt        time.Time `json:"paidAt"`
}
