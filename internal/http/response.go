package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
	"github.com/robertarktes/hotel-booking-payments/internal/idempotency"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
)

type bookingResponse struct {
	ID              string  `json:"id"`
	Status          string  `json:"status"`
	DestinationID   string  `json:"destinationId"`
	HotelID         string  `json:"hotelId"`
	HotelName       string  `json:"hotelName"`
	RoomKey         string  `json:"roomKey"`
	RoomTypes       string  `json:"roomTypes"`
	CustomerID      *string `json:"customerId"`
	NumberOfNights  int     `json:"numberOfNights"`
	StartDate       string  `json:"startDate"`
	EndDate         string  `json:"endDate"`
	NumAdults       int     `json:"numAdults"`
	NumChildren     int     `json:"numChildren"`
	MsgToHotel      string  `json:"msgToHotel"`
	Price           string  `json:"price"`
	Currency        string  `json:"currency"`
	GuestSalutation string  `json:"guestSalutation"`
	GuestFirstName  string  `json:"guestFirstName"`
	GuestLastName   string  `json:"guestLastName"`
	PaymentID       string  `json:"paymentId"`
	PayeeID         string  `json:"payeeId"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
}

func newBookingResponse(b domain.Booking) bookingResponse {
	return bookingResponse{
		ID:              b.ID.String(),
		Status:          string(b.Status),
		DestinationID:   b.DestinationID,
		HotelID:         b.HotelID,
		HotelName:       b.HotelName,
		RoomKey:         b.RoomKey,
		RoomTypes:       b.RoomTypes,
		CustomerID:      b.CustomerID,
		NumberOfNights:  b.NumberOfNights,
		StartDate:       b.StartDate.Format(domain.DateLayout),
		EndDate:         b.EndDate.Format(domain.DateLayout),
		NumAdults:       b.NumAdults,
		NumChildren:     b.NumChildren,
		MsgToHotel:      b.MsgToHotel,
		Price:           b.Price.StringFixed(2),
		Currency:        b.Currency,
		GuestSalutation: b.GuestSalutation,
		GuestFirstName:  b.GuestFirstName,
		GuestLastName:   b.GuestLastName,
		PaymentID:       b.PaymentID,
		PayeeID:         b.PayeeID,
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(msg))
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidSignature),
		errors.Is(err, idempotency.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrSerializationFailure),
		errors.Is(err, idempotency.ErrInFlight):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, h.log(r), err)
}

func writeError(w http.ResponseWriter, log observability.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error("request failed: ", err)
		if status == http.StatusBadGateway {
			msg = "payment gateway unavailable"
		} else {
			msg = "internal error"
		}
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
