package httpext

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/deepgram/readme-relay/pkg/logger"
	"github.com/go-playground/validator/v10"
)

// ErrorResponse is the body of every JSON error the relay returns. Fields is
// only set for rejected request payloads.
type ErrorResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

// FieldError names one payload field and the rule it broke.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// JsonError writes a JSON error response with the specified status code
func JsonError(w http.ResponseWriter, message string, code int) {
	JsonErrorWithDetails(w, code, ErrorResponse{Error: message})
}

// JsonErrorWithDetails writes a full ErrorResponse
func JsonErrorWithDetails(w http.ResponseWriter, code int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error(logger.HANDLER, "Failed to encode error response: %v", err)
	}
}

// FieldErrors flattens validator errors into client-facing field paths such
// as "formData.stats.graphHeight". Other errors yield nil.
func FieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		// drop the root struct name
		_, path, found := strings.Cut(fe.Namespace(), ".")
		if !found {
			path = fe.Field()
		}
		fields = append(fields, FieldError{Field: path, Rule: fe.Tag()})
	}
	return fields
}
