package models

import "time"

// TicketPayload is the content encoded into an e-ticket QR code.
type TicketPayload struct {
	BookingID     string    `json:"bookingId"`
	PNRNumber     string    `json:"pnr"`
	ScheduleID    string    `json:"scheduleId"`
	Seats         []string  `json:"seats"`
	Source        string    `json:"source"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departureTime"`
	IssuedAt      time.Time `json:"issuedAt"`
}
