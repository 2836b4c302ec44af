package domain

import (
	"net/http"
	"net/url"
	"testing"
)

func TestNewHTTPError(t *testing.T) {
	reqURL, _ := url.Parse("http://bamboo:8085/rest/api/latest/plan")
	resp := &http.Response{
		Status:     "404 Not Found",
		StatusCode: http.StatusNotFound,
		Request:    &http.Request{Method: http.MethodGet, URL: reqURL},
	}

	err := NewHTTPError(resp)
	if err.Reason != "Not Found" {
		t.Errorf("Reason = %q, want Not Found", err.Reason)
	}
	if err.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", err.StatusCode)
	}
	if want := "GET http://bamboo:8085/rest/api/latest/plan: Not Found (status 404)"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestNewHTTPError_CustomReason(t *testing.T) {
	resp := &http.Response{
		Status:     "500 Bamboo Is Sad",
		StatusCode: http.StatusInternalServerError,
	}

	err := NewHTTPError(resp)
	if err.Reason != "Bamboo Is Sad" {
		t.Errorf("Reason = %q, want server reason phrase", err.Reason)
	}
	if err.Error() != "Bamboo Is Sad" {
		t.Errorf("Error() = %q, want bare reason without request", err.Error())
	}
}

func TestNewHTTPError_MissingReason(t *testing.T) {
	resp := &http.Response{
		Status:     "503",
		StatusCode: http.StatusServiceUnavailable,
	}

	if got := NewHTTPError(resp).Reason; got != "Service Unavailable" {
		t.Errorf("Reason = %q, want Service Unavailable", got)
	}
}
