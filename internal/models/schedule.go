package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BusType string

const (
	BusTypeAC    BusType = "AC"
	BusTypeNonAC BusType = "Non-AC"
)

func (t BusType) Valid() bool {
	return t == BusTypeAC || t == BusTypeNonAC
}

type Bus struct {
	bun.BaseModel `bun:"table:buses,alias:bu"`

	ID         string    `bun:"id,pk" json:"id"`
	Name       string    `bun:"name,notnull" json:"name"`
	Operator   string    `bun:"operator,notnull" json:"operator"`
	BusType    BusType   `bun:"bus_type,notnull" json:"busType"`
	TotalSeats int       `bun:"total_seats,notnull" json:"totalSeats"`
	Amenities  []string  `bun:"amenities" json:"amenities"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt  time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

type Schedule struct {
	bun.BaseModel `bun:"table:schedules,alias:s"`

	ID            string    `bun:"id,pk" json:"id"`
	BusID         string    `bun:"bus_id,notnull" json:"busId"`
	Source        string    `bun:"source,notnull" json:"source"`
	Destination   string    `bun:"destination,notnull" json:"destination"`
	DepartureTime time.Time `bun:"departure_time,notnull" json:"departureTime"`
	Fare          float64   `bun:"fare,notnull" json:"fare"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// ScheduleWithBus is a schedule joined with its bus for listings and search results.
type ScheduleWithBus struct {
	Schedule
	Bus *Bus `json:"bus,omitempty"`
}

// ScheduleAvailability is a schedule with the seats currently held by active bookings.
type ScheduleAvailability struct {
	Schedule
	Bus            *Bus     `json:"bus,omitempty"`
	BookedSeats    []string `json:"bookedSeats"`
	// LockedSeats are being booked by requests that have not committed yet.
	LockedSeats    []string `json:"lockedSeats"`
	AvailableCount int      `json:"availableSeats"`
}

type CreateBusRequest struct {
	Name       string   `json:"name"`
	Operator   string   `json:"operator"`
	BusType    BusType  `json:"busType"`
	TotalSeats int      `json:"totalSeats"`
	Amenities  []string `json:"amenities"`
}

type CreateScheduleRequest struct {
	BusID         string    `json:"busId"`
	Source        string    `json:"source"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departureTime"`
	Fare          float64   `json:"fare"`
}

// UpdateScheduleRequest carries optional fields; nil means unchanged.
type UpdateScheduleRequest struct {
	Source        *string    `json:"source,omitempty"`
	Destination   *string    `json:"destination,omitempty"`
	DepartureTime *time.Time `json:"departureTime,omitempty"`
	Fare          *float64   `json:"fare,omitempty"`
}

// UpdateBusRequest carries optional fields; nil means unchanged.
type UpdateBusRequest struct {
	Name       *string   `json:"name,omitempty"`
	Operator   *string   `json:"operator,omitempty"`
	BusType    *BusType  `json:"busType,omitempty"`
	TotalSeats *int      `json:"totalSeats,omitempty"`
	Amenities  *[]string `json:"amenities,omitempty"`
}

type BulkScheduleRequest struct {
	Schedules []CreateScheduleRequest `json:"schedules"`
}

// SearchQuery filters schedules by case-insensitive substrings and a departure day.
type SearchQuery struct {
	Source      string
	Destination string
	Date        time.Time
}
