// Package httpx holds the JSON envelope shared by the middleware chain and
// the REST handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/clinicauth"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

// Envelope is the body of every response.
type Envelope struct {
	Success   bool                    `json:"success"`
	Message   string                  `json:"message,omitempty"`
	Data      any                     `json:"data,omitempty"`
	Errors    []clinicauth.FieldError `json:"errors,omitempty"`
	LockUntil *time.Time              `json:"lockUntil,omitempty"`
	Count     int                     `json:"count,omitempty"`
}

// ErrBadJSON is returned by ReadJSON for a wrong content type or a body that
// does not decode.
var ErrBadJSON = &clinicauth.Error{
	Kind:    clinicauth.ErrValidation,
	Message: "request body must be a JSON object",
}

// ReadJSON decodes at most 1 MiB of JSON into v. Unknown fields are
// ignored; an empty body leaves v untouched.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) error {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if ct != "" && !strings.Contains(ct, "application/json") {
		return ErrBadJSON
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return ErrBadJSON
	}
	return nil
}

// WriteJSON writes v as the body with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData wraps data in a success envelope.
func WriteData(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// WriteError renders err with the status of its sentinel. Internal errors
// are logged and reach the client only as "internal server error".
func WriteError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := clinicauth.StatusOf(err)
	body := Envelope{Message: clinicauth.PublicMessage(err)}

	if status == http.StatusInternalServerError {
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		WriteJSON(w, status, body)
		return
	}

	var appErr *clinicauth.Error
	if errors.As(err, &appErr) {
		body.Errors = appErr.Fields
		body.LockUntil = appErr.LockedUntil
		body.Count = appErr.Count
	}
	if status == http.StatusTooManyRequests && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", "1")
	}
	WriteJSON(w, status, body)
}
