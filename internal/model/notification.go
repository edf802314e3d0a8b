package model

import "time"

// PaymentNotification is one payment result received on the callback URL.
// Failed attempts carry only the result code and description; the metadata
// fields stay at their zero values.
type PaymentNotification struct {
	ID                 string    `json:"id"`
	MerchantRequestID  string    `json:"merchant_request_id"`
	CheckoutRequestID  string    `json:"checkout_request_id"`
	ResultCode         int       `json:"result_code"`
	ResultDesc         string    `json:"result_desc"`
	Amount             float64   `json:"amount,omitempty"`
	MpesaReceiptNumber string    `json:"mpesa_receipt_number,omitempty"`
	TransactionDate    string    `json:"transaction_date,omitempty"`
	PhoneNumber        string    `json:"phone_number,omitempty"`
	Read               bool      `json:"read"`
	ReceivedAt         time.Time `json:"received_at"`
}

// Successful reports whether the payment completed.
func (n *PaymentNotification) Successful() bool {
	return n.ResultCode == 0
}

// Summary aggregates the state of the notification store.
type Summary struct {
	Total       int    `json:"total_notifications"`
	Unread      int    `json:"unread_notifications"`
	Read        int    `json:"read_notifications"`
	CallbackURL string `json:"callback_url,omitempty"`
}
