package domain

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Checkout intent attribute keys. The client sends these as a flat object and
// the payment processor hands them back verbatim in the completion event.
const (
	KeyCustomerEmail   = "customerEmailAddress"
	KeyDestinationID   = "destinationId"
	KeyHotelName       = "hotelName"
	KeyHotelID         = "hotelId"
	KeyRoomKey         = "roomKey"
	KeyCustomerID      = "customerId"
	KeyNumberOfNights  = "numberOfNights"
	KeyStartDate       = "startDate"
	KeyEndDate         = "endDate"
	KeyNumAdults       = "numAdults"
	KeyNumChildren     = "numChildren"
	KeyMsgToHotel      = "msgToHotel"
	KeyRoomTypes       = "roomTypes"
	KeyPrice           = "price"
	KeyGuestSalutation = "guestSalutation"
	KeyGuestFirstName  = "guestFirstName"
	KeyGuestLastName   = "guestLastName"
)

// Processor metadata limits.
const (
	MaxMetadataKeys     = 50
	MaxMetadataKeyLen   = 40
	MaxMetadataValueLen = 500
)

var requiredCheckoutKeys = []string{KeyHotelName, KeyHotelID, KeyPrice, KeyStartDate, KeyEndDate, KeyNumAdults}

// CheckoutIntent is the flat attribute set describing a prospective booking.
type CheckoutIntent map[string]string

// FlattenIntent converts a decoded JSON object into a CheckoutIntent. Scalars
// are kept as their literal text; objects and arrays are rejected.
func FlattenIntent(raw map[string]json.RawMessage) (CheckoutIntent, error) {
	intent := make(CheckoutIntent, len(raw))
	for key, value := range raw {
		v := bytes.TrimSpace(value)
		if len(v) == 0 {
			intent[key] = ""
			continue
		}
		switch v[0] {
		case '{', '[':
			return nil, Invalidf("attribute %q must be a flat value", key)
		case '"':
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, Invalidf("attribute %q: %v", key, err)
			}
			intent[key] = s
		case 'n':
			intent[key] = ""
		default:
			// numbers and booleans keep their literal JSON text
			intent[key] = string(v)
		}
	}
	return intent, nil
}

func (c CheckoutIntent) Get(key string) string {
	return strings.TrimSpace(c[key])
}

// Validate checks the attributes needed to open a checkout session and the
// processor's metadata limits.
func (c CheckoutIntent) Validate() error {
	if len(c) > MaxMetadataKeys {
		return Invalidf("too many booking attributes: %d > %d", len(c), MaxMetadataKeys)
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(k) > MaxMetadataKeyLen {
			return Invalidf("attribute name %q is too long", k)
		}
		if len(c[k]) > MaxMetadataValueLen {
			return Invalidf("attribute %q is too long", k)
		}
	}
	var missing []string
	for _, k := range requiredCheckoutKeys {
		if c.Get(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Invalidf("missing booking attributes: %s", strings.Join(missing, ", "))
	}
	if _, err := ParsePrice(c[KeyPrice]); err != nil {
		return err
	}
	return nil
}

// Price returns the parsed booking price.
func (c CheckoutIntent) Price() (decimal.Decimal, error) {
	return ParsePrice(c[KeyPrice])
}

// Clone returns a copy safe to hand to another owner.
func (c CheckoutIntent) Clone() CheckoutIntent {
	out := make(CheckoutIntent, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// ParsePrice parses a positive amount with at most two decimal places.
func ParsePrice(s string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, Invalidf("price %q is not a number", s)
	}
	if !price.IsPositive() {
		return decimal.Zero, Invalidf("price must be greater than zero")
	}
	shifted := price.Shift(2)
	if !shifted.Equal(shifted.Truncate(0)) {
		return decimal.Zero, Invalidf("price %q has more than two decimal places", s)
	}
	return price, nil
}

// MinorUnits converts an amount in a two-decimal currency to its integer
// minor-unit representation.
func MinorUnits(price decimal.Decimal) int64 {
	return price.Shift(2).IntPart()
}

// SessionRequest is what the checkout orchestrator asks the gateway to open.
type SessionRequest struct {
	ProductName   string
	Currency      string
	UnitAmount    int64
	CustomerEmail string
	Metadata      CheckoutIntent
	SuccessURL    string
	CancelURL     string
}

// Session is the descriptor returned to the client after session creation.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
