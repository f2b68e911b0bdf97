package apierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRemoteCode(t *testing.T) {
	tests := []struct {
		code int
		kind Kind
		cls  Class
	}{
		{CodeRateLimited, KindRateLimit, ClassTransient},
		{CodeMembershipExpired, KindExpired, ClassTerminal},
		{CodeDeviceRestricted, KindAuth, ClassFatal},
		{99999, KindUnknown, ClassTransient},
	}
	for _, tt := range tests {
		err := FromRemoteCode(tt.code, "msg")
		assert.Equal(t, tt.kind, err.Kind, "code %d", tt.code)
		assert.Equal(t, tt.cls, err.Class(), "code %d", tt.code)
		assert.Equal(t, tt.code, err.Code)
	}
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
		cls    Class
	}{
		{429, KindRateLimit, ClassTransient},
		{401, KindAuth, ClassFatal},
		{403, KindAuth, ClassFatal},
		{500, KindServer, ClassTransient},
		{502, KindServer, ClassTransient},
		{503, KindServer, ClassTransient},
		{504, KindServer, ClassTransient},
		{418, KindUnknown, ClassTransient},
	}
	for _, tt := range tests {
		err := FromHTTPStatus(tt.status, "msg")
		assert.Equal(t, tt.kind, err.Kind, "status %d", tt.status)
		assert.Equal(t, tt.cls, err.Class(), "status %d", tt.status)
	}
}

func TestClassOfPlainError(t *testing.T) {
	assert.Equal(t, ClassTransient, ClassOf(errors.New("connection reset")))
}

func TestClassOfWrappedError(t *testing.T) {
	inner := FromRemoteCode(CodeMembershipExpired, "expired")
	wrapped := errors.Join(errors.New("context"), inner)
	assert.Equal(t, ClassTerminal, ClassOf(wrapped))
	assert.True(t, IsExpired(wrapped))
}

func TestErrorString(t *testing.T) {
	assert.Contains(t, FromRemoteCode(1059, "slow down").Error(), "1059")
	assert.Contains(t, FromHTTPStatus(429, "throttled").Error(), "429")
	assert.Contains(t, Network(errors.New("timeout")).Error(), "timeout")
}
