// Package apiutil holds shared HTTP plumbing for the JSON API: request
// decoding, the response envelope, and the mapping from typed domain
// rejections to statuses.
package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/belayhq/belay/internal/booking"
	"github.com/belayhq/belay/internal/sessions"
)

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

// errorBody is the wire shape of every non-2xx response:
// {"error": {"message": "...", "details": [...]}}.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteError renders the standard error envelope.
func WriteError(w http.ResponseWriter, status int, message string, details ...string) {
	_ = WriteJSON(w, status, errorBody{Error: errorDetail{Message: message, Details: details}})
}

// WriteDomainError maps a domain error to the envelope: typed rejections
// and validation errors get their taxonomy status, everything else is an
// internal fault that gets logged and masked.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if rejection, ok := booking.AsRejection(err); ok {
		WriteError(w, rejection.Kind.HTTPStatus(), rejection.Message)
		return
	}

	var vErr *sessions.ValidationError
	if errors.As(err, &vErr) {
		WriteError(w, http.StatusBadRequest, "Validation failed", vErr.Error())
		return
	}
	if errors.Is(err, sessions.ErrNoOccurrences) {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var fErr FieldError
	if errors.As(err, &fErr) {
		WriteError(w, http.StatusBadRequest, "Validation failed", fErr.Error())
		return
	}
	var hErr HandlerError
	if errors.As(err, &hErr) {
		if hErr.Err != nil {
			log.Ctx(r.Context()).Error().Err(hErr.Err).Msg(hErr.Message)
		}
		WriteError(w, hErr.Status, hErr.Message)
		return
	}

	log.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
	WriteError(w, http.StatusInternalServerError, "Internal server error")
}
