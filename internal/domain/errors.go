package domain

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// HTTPError is returned when the Bamboo server answers with anything other than 200 OK.
// Reason holds the reason phrase of the status line (e.g. "Not Found").
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Reason     string
}

// NewHTTPError builds an HTTPError from a response, extracting the reason phrase
// from the status line.
func NewHTTPError(resp *http.Response) *HTTPError {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}

	e := &HTTPError{
		StatusCode: resp.StatusCode,
		Reason:     reason,
	}
	if resp.Request != nil {
		e.Method = resp.Request.Method
		if resp.Request.URL != nil {
			e.URL = resp.Request.URL.String()
		}
	}
	return e
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.URL == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s: %s (status %d)", e.Method, e.URL, e.Reason, e.StatusCode)
}

// ValidationError is returned when a caller-supplied filter value is not one of
// the values the Bamboo API accepts. It is raised before any request is made.
type ValidationError struct {
	Field   string
	Value   string
	Allowed []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("incorrect value %q for '%s'. Valid values include: %s",
		e.Value, e.Field, strings.Join(e.Allowed, ","))
}
