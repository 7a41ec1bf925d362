package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpstreamError_Classification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantType  ErrorType
		auth      bool
		notFound  bool
		transient bool
	}{
		{"unauthorized", 401, ErrorTypeAuthorization, true, false, false},
		{"forbidden", 403, ErrorTypeForbidden, true, false, false},
		{"not found", 404, ErrorTypeNotFound, false, true, false},
		{"throttled", 429, ErrorTypeExternal, false, false, true},
		{"server error", 503, ErrorTypeExternal, false, false, true},
		{"bad request", 400, ErrorTypeExternal, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := UpstreamError(tt.status, "commits", "")
			wrapped := fmt.Errorf("list commits: %w", err)

			gotType, ok := TypeOf(wrapped)
			assert.True(t, ok)
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, tt.auth, IsAuthorization(wrapped))
			assert.Equal(t, tt.notFound, IsNotFound(wrapped))
			assert.Equal(t, tt.transient, IsTransient(wrapped))
			assert.Equal(t, tt.status, err.StatusCode)
		})
	}
}

func TestError_IsMatchesByType(t *testing.T) {
	err := fmt.Errorf("outer: %w", UpstreamError(401, "projects", ""))

	assert.ErrorIs(t, err, &Error{Type: ErrorTypeAuthorization})
	assert.NotErrorIs(t, err, &Error{Type: ErrorTypeNotFound})
}

func TestPlainErrorsAreNotClassified(t *testing.T) {
	err := fmt.Errorf("boom")

	_, ok := TypeOf(err)
	assert.False(t, ok)
	assert.False(t, IsAuthorization(err))
	assert.False(t, IsTransient(err))
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeInternal, SeverityLow, "nothing"))
}

func TestDetailedString_IncludesStatusAndCause(t *testing.T) {
	err := ExternalErrorf(fmt.Errorf("eof"), "decode %s", "builds").WithStatus(200).WithContext("org", "contoso")

	out := err.DetailedString()
	assert.Contains(t, out, "[MEDIUM] [EXTERNAL] decode builds")
	assert.Contains(t, out, "Status: 200")
	assert.Contains(t, out, "Caused by: eof")
	assert.Contains(t, out, "org: contoso")
}

func TestIsAuthorization_ThroughStructuredWrapper(t *testing.T) {
	err := ExternalErrorf(UpstreamError(403, "builds", ""), "build statistics")

	gotType, _ := TypeOf(err)
	assert.Equal(t, ErrorTypeExternal, gotType)
	assert.True(t, IsAuthorization(err))
	assert.False(t, IsNotFound(err))
}
