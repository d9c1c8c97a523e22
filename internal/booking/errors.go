package booking

import (
	"errors"
	"net/http"
)

// Kind is the closed taxonomy of expected rejection reasons. The core
// returns these as values, never panics, and the HTTP layer maps them to
// statuses. Anything outside this set is an infrastructure fault and
// propagates as a plain error.
type Kind string

const (
	KindNotFound                 Kind = "NotFound"
	KindOutsideBookingWindow     Kind = "OutsideBookingWindow"
	KindUnauthorized             Kind = "Unauthorized"
	KindDuplicateBooking         Kind = "DuplicateBooking"
	KindCapacityExceeded         Kind = "CapacityExceeded"
	KindInvalidCapacityReduction Kind = "InvalidCapacityReduction"
	KindAlreadyCancelled         Kind = "AlreadyCancelled"
	KindCancellationWindowClosed Kind = "CancellationWindowClosed"
)

// Rejection is an expected, typed refusal of a booking operation.
type Rejection struct {
	Kind    Kind
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

func reject(kind Kind, message string) *Rejection {
	return &Rejection{Kind: kind, Message: message}
}

// AsRejection unwraps err into a Rejection if it is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// HTTPStatus maps a rejection kind to its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusForbidden
	case KindDuplicateBooking, KindCapacityExceeded:
		return http.StatusConflict
	case KindOutsideBookingWindow, KindInvalidCapacityReduction,
		KindAlreadyCancelled, KindCancellationWindowClosed:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
