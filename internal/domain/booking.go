package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

const DateLayout = "2006-01-02"

func (s Status) Valid() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// TransitionFrom returns the only status a booking may hold before moving to s.
// Re-applying the current status is handled by the store as a no-op.
func TransitionFrom(s Status) (Status, bool) {
	switch s {
	case StatusCancelled:
		return StatusConfirmed, true
	default:
		return "", false
	}
}

type Booking struct {
	ID              uuid.UUID
	Status          Status
	DestinationID   string
	HotelID         string
	HotelName       string
	RoomKey         string
	RoomTypes       string
	CustomerID      *string
	NumberOfNights  int
	StartDate       time.Time
	EndDate         time.Time
	NumAdults       int
	NumChildren     int
	MsgToHotel      string
	Price           decimal.Decimal
	Currency        string
	GuestSalutation string
	GuestFirstName  string
	GuestLastName   string
	BillingEmail    string
	PaymentID       string
	PayeeID         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BookingRequest is the combined payload used to create a booking once the
// payment has settled.
type BookingRequest struct {
	BillingEmail string         `json:"billingEmail"`
	Intent       CheckoutIntent `json:"intent"`
	PaymentID    string         `json:"paymentId"`
	PayeeID      string         `json:"payeeId"`
}

// NewBooking builds a confirmed booking from a settled payment.
func NewBooking(req BookingRequest, currency string) (Booking, error) {
	in := req.Intent
	if req.PayeeID == "" || req.PaymentID == "" {
		return Booking{}, Invalidf("payment references are required")
	}
	for _, k := range []string{KeyHotelID, KeyStartDate, KeyEndDate} {
		if in.Get(k) == "" {
			return Booking{}, Invalidf("missing booking attribute %s", k)
		}
	}
	price, err := ParsePrice(in[KeyPrice])
	if err != nil {
		return Booking{}, err
	}
	start, err := parseDate(KeyStartDate, in.Get(KeyStartDate))
	if err != nil {
		return Booking{}, err
	}
	end, err := parseDate(KeyEndDate, in.Get(KeyEndDate))
	if err != nil {
		return Booking{}, err
	}
	if end.Before(start) {
		return Booking{}, Invalidf("endDate is before startDate")
	}
	nights, err := parseCount(KeyNumberOfNights, in.Get(KeyNumberOfNights))
	if err != nil {
		return Booking{}, err
	}
	if nights == 0 {
		nights = int(end.Sub(start).Hours() / 24)
	}
	adults, err := parseCount(KeyNumAdults, in.Get(KeyNumAdults))
	if err != nil {
		return Booking{}, err
	}
	children, err := parseCount(KeyNumChildren, in.Get(KeyNumChildren))
	if err != nil {
		return Booking{}, err
	}

	var customerID *string
	if id := in.Get(KeyCustomerID); id != "" {
		customerID = &id
	}

	return Booking{
		Status:          StatusConfirmed,
		DestinationID:   in.Get(KeyDestinationID),
		HotelID:         in.Get(KeyHotelID),
		HotelName:       in.Get(KeyHotelName),
		RoomKey:         in.Get(KeyRoomKey),
		RoomTypes:       in.Get(KeyRoomTypes),
		CustomerID:      customerID,
		NumberOfNights:  nights,
		StartDate:       start,
		EndDate:         end,
		NumAdults:       adults,
		NumChildren:     children,
		MsgToHotel:      in[KeyMsgToHotel],
		Price:           price,
		Currency:        strings.ToLower(currency),
		GuestSalutation: in.Get(KeyGuestSalutation),
		GuestFirstName:  in.Get(KeyGuestFirstName),
		GuestLastName:   in.Get(KeyGuestLastName),
		BillingEmail:    strings.TrimSpace(req.BillingEmail),
		PaymentID:       req.PaymentID,
		PayeeID:         req.PayeeID,
	}, nil
}

func parseDate(key, s string) (time.Time, error) {
	// clients occasionally send full timestamps
	if len(s) > len(DateLayout) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, Invalidf("%s %q is not a date", key, s)
	}
	return t, nil
}

func parseCount(key, s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, Invalidf("%s %q is not a non-negative integer", key, s)
	}
	return n, nil
}

type Hotel struct {
	ID            string
	Name          string
	Address       string
	DestinationID string
}
