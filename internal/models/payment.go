package models

type CreatePaymentIntentRequest struct {
	BookingID string `json:"bookingId"`
}

type PaymentIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}
