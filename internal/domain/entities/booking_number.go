package entities

import (
	"regexp"

	"github.com/google/uuid"
)

const bookingNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var bookingNumberPattern = regexp.MustCompile(`^BK-[A-Z0-9]{8}$`)

// UUID byte positions that carry no version or variant bits.
var bookingNumberSourceBytes = [8]int{0, 1, 2, 3, 4, 5, 10, 11}

// NewBookingNumber returns a human-readable booking number: "BK-" followed by
// eight uppercase alphanumerics drawn from a random UUID.
func NewBookingNumber() string {
	id := uuid.New()
	out := make([]byte, 0, 11)
	out = append(out, "BK-"...)
	for _, i := range bookingNumberSourceBytes {
		out = append(out, bookingNumberAlphabet[int(id[i])%len(bookingNumberAlphabet)])
	}
	return string(out)
}

// IsValidBookingNumber reports whether s has the booking number format.
func IsValidBookingNumber(s string) bool {
	return bookingNumberPattern.MatchString(s)
}
