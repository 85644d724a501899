package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNotFound(t *testing.T) {
	err := NotFound("Listing")

	if err.Code != CodeNotFound {
		t.Errorf("Code = %s, want %s", err.Code, CodeNotFound)
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d, want 404", err.HTTPStatus)
	}
	if err.UserMessage() != "Listing not found" {
		t.Errorf("UserMessage() = %q", err.UserMessage())
	}
}

func TestServiceError_UnwrapChain(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Unavailable("").WithCause(cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}

	wrapped := fmt.Errorf("load cars: %w", err)
	var se *ServiceError
	if !stderrors.As(wrapped, &se) {
		t.Fatal("errors.As should find the ServiceError through wrapping")
	}
	if se.Code != CodeUnavailable {
		t.Errorf("Code = %s, want %s", se.Code, CodeUnavailable)
	}
}

func TestFromHTTPStatus(t *testing.T) {
	testCases := []struct {
		status   int
		wantCode Code
	}{
		{http.StatusNotFound, CodeNotFound},
		{http.StatusUnauthorized, CodeUnauthorized},
		{http.StatusForbidden, CodeForbidden},
		{http.StatusBadRequest, CodeInvalidInput},
		{http.StatusTooManyRequests, CodeRateLimitExceeded},
		{http.StatusGatewayTimeout, CodeTimeout},
		{http.StatusBadGateway, CodeUnavailable},
		{http.StatusConflict, CodeInternal},
	}

	for _, tc := range testCases {
		if got := FromHTTPStatus(tc.status, "").Code; got != tc.wantCode {
			t.Errorf("FromHTTPStatus(%d).Code = %s, want %s", tc.status, got, tc.wantCode)
		}
	}
}

func TestFromHTTPStatus_KeepsBackendMessage(t *testing.T) {
	err := FromHTTPStatus(http.StatusNotFound, "row not found")
	if err.Message != "row not found" {
		t.Errorf("Message = %q, want backend message kept", err.Message)
	}

	err = FromHTTPStatus(http.StatusNotFound, "")
	if err.Message == "" {
		t.Error("empty backend message should fall back to a display default")
	}
}

func TestIsRetryable(t *testing.T) {
	nonRetryable := []*ServiceError{
		NotFound("x"),
		Unauthorized(""),
		Forbidden(""),
		InvalidInput("bad"),
	}
	for _, err := range nonRetryable {
		if IsRetryable(err) {
			t.Errorf("IsRetryable(%s) = true, want false", err.Code)
		}
	}

	retryable := []error{
		Unavailable(""),
		Timeout(""),
		Internal(""),
		stderrors.New("plain network error"),
	}
	for _, err := range retryable {
		if !IsRetryable(err) {
			t.Errorf("IsRetryable(%v) = false, want true", err)
		}
	}
}

func TestIsAuth(t *testing.T) {
	if !IsAuth(Unauthorized("")) || !IsAuth(Forbidden("")) {
		t.Error("IsAuth should match both auth codes")
	}
	if IsAuth(NotFound("x")) {
		t.Error("IsAuth should not match not-found")
	}
}

func TestGetServiceError_WrapsPlainErrors(t *testing.T) {
	plain := stderrors.New("boom")
	se := GetServiceError(plain)

	if se.Code != CodeInternal {
		t.Errorf("Code = %s, want %s", se.Code, CodeInternal)
	}
	if !stderrors.Is(se, plain) {
		t.Error("wrapped error should keep the cause")
	}
}
