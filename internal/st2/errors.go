package st2

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// APIError is a failure envelope returned by the automation API.
type APIError struct {
	Status    int
	Message   string
	RequestID string // from the X-Request-ID response header, when present
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("st2 api: status %d: %s (request id %s)", e.Status, e.Message, e.RequestID)
	}
	return fmt.Sprintf("st2 api: status %d: %s", e.Status, e.Message)
}

// AcceptedID reports whether err is the "already accepted" signal older API
// versions return for alias executions: a 200 response that is not a
// result envelope, whose body is the execution id.
func AcceptedID(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == 200 {
		return apiErr.Message, true
	}
	return "", false
}

// parseErrorBody extracts a readable message from an error response body.
func parseErrorBody(body []byte) string {
	var fault struct {
		Faultstring string `json:"faultstring"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(body, &fault); err == nil {
		if fault.Faultstring != "" {
			return fault.Faultstring
		}
		if fault.Message != "" {
			return fault.Message
		}
	}
	return strings.TrimSpace(string(body))
}
