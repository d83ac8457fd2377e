package rerrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfDefaultsToInternalForUntypedError(t *testing.T) {
	assert.Equal(t, Internal, CodeOf(errors.New("plain error")))
}

func TestCodeOfUnwrapsWrappedError(t *testing.T) {
	base := New(NotFound, "missing")
	wrapped := Wrap(NotFound, base, "lookup failed")
	assert.Equal(t, NotFound, CodeOf(wrapped))
}

func TestIsRetryableMatchesDefaultSet(t *testing.T) {
	assert.True(t, IsRetryable(New(Unavailable, "down")))
	assert.False(t, IsRetryable(New(InvalidArgument, "bad")))
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(RateLimited))
	assert.Equal(t, 499, HTTPStatus(Cancelled))
}

func TestCodeFromHTTPStatusRoundTrips(t *testing.T) {
	for _, code := range []Code{InvalidArgument, NotFound, RateLimited, Internal, Unavailable, DeadlineExceeded} {
		status := HTTPStatus(code)
		assert.Equal(t, code, CodeFromHTTPStatus(status))
	}
}
