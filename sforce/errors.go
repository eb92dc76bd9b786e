package sforce

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Common API error types
var (
	// ErrNotFound is returned when a record or object type does not exist
	ErrNotFound = errors.New("record not found")

	// ErrRequiredFieldMissing is returned when the API rejects a record for a
	// missing mandatory field
	ErrRequiredFieldMissing = errors.New("required field missing")

	// ErrDuplicateValue is returned when a unique field value already exists
	ErrDuplicateValue = errors.New("duplicate value")

	// ErrInvalidSession is returned when the access token is expired or revoked
	ErrInvalidSession = errors.New("invalid session")

	// ErrMalformedID is returned when a record id is not a valid id
	ErrMalformedID = errors.New("malformed record id")

	// ErrAuthFailed is returned when the token endpoint rejects the grant
	ErrAuthFailed = errors.New("authentication failed")
)

// APIError is a single error entry from the REST API's error payload
type APIError struct {
	StatusCode int      `json:"-"`
	Code       string   `json:"errorCode"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s (fields: %v)", e.Code, e.Message, e.Fields)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// convertAPIError decodes an error response body and maps well-known error
// codes to sentinel errors
func convertAPIError(statusCode int, body []byte) error {
	var payload []APIError
	if err := json.Unmarshal(body, &payload); err != nil || len(payload) == 0 {
		return fmt.Errorf("api error: status %d: %s", statusCode, string(body))
	}

	apiErr := &payload[0]
	apiErr.StatusCode = statusCode

	switch apiErr.Code {
	case "NOT_FOUND", "ENTITY_IS_DELETED", "INVALID_TYPE":
		return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
	case "REQUIRED_FIELD_MISSING":
		return fmt.Errorf("%w: %s (fields: %v)", ErrRequiredFieldMissing, apiErr.Message, apiErr.Fields)
	case "DUPLICATE_VALUE", "DUPLICATES_DETECTED":
		return fmt.Errorf("%w: %s", ErrDuplicateValue, apiErr.Message)
	case "INVALID_SESSION_ID":
		return fmt.Errorf("%w: %s", ErrInvalidSession, apiErr.Message)
	case "MALFORMED_ID":
		return fmt.Errorf("%w: %s", ErrMalformedID, apiErr.Message)
	}

	if statusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
	}
	if statusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrInvalidSession, apiErr.Message)
	}

	return apiErr
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidSession returns true if the error is ErrInvalidSession
func IsInvalidSession(err error) bool {
	return errors.Is(err, ErrInvalidSession)
}
