package models

// PayGateRequest is the standard request structure for the PayGate API.
type PayGateRequest struct {
	Amount             *float64 `json:"amount,omitempty"`
	Currency           string   `json:"currency,omitempty"`
	Invoice            string   `json:"invoice,omitempty"`
	ExternalID         *int64   `json:"externalId,omitempty"`
	SuccessCallbackURL string   `json:"successCallbackUrl,omitempty"`
	FailureCallbackURL string   `json:"failureCallbackUrl,omitempty"`
	SuccessRedirectURL string   `json:"successRedirectUrl,omitempty"`
	FailureRedirectURL string   `json:"failureRedirectUrl,omitempty"`
}

// PayGateResponse is the standard response envelope from the PayGate API.
type PayGateResponse struct {
	Status bool                   `json:"status"`
	Code   interface{}            `json:"code"`   // string or null
	Dialog interface{}            `json:"dialog"` // string, object, or null
	Data   map[string]interface{} `json:"data"`
}

// PaymentCapturedEvent is the webhook envelope PayGate delivers when a
// collect completes. The raw body is HMAC-signed; see utils.VerifySignature.
type PaymentCapturedEvent struct {
	Event      string  `json:"event"`
	DeliveryID string  `json:"deliveryId,omitempty"`
	ExternalID int64   `json:"externalId"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Status     string  `json:"collectStatus"`
	PayerPhone string  `json:"payerPhoneNumber,omitempty"`
}
