package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewPanelError(ErrCodeRemoteUnreachable, "panel unreachable", true, cause)

	assert.Equal(t, DomainPanel, err.Domain())
	assert.Equal(t, ErrCodeRemoteUnreachable, err.Code())
	assert.True(t, err.Retryable())
	assert.Contains(t, err.Error(), "panel unreachable")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.False(t, err.Timestamp().IsZero())
}

func TestWithMetadataCopies(t *testing.T) {
	base := NewProvisioningError(ErrCodeNoCapacity, "no eligible server", true, nil)
	enriched := base.WithMetadata("country", "NL")

	require.Nil(t, base.Metadata())
	require.NotNil(t, enriched.Metadata())
	assert.Equal(t, "NL", enriched.Metadata()["country"])

	// The copy returned by Metadata must not alias internal state.
	enriched.Metadata()["country"] = "DE"
	assert.Equal(t, "NL", enriched.Metadata()["country"])
}

func TestErrorCodeHelpers(t *testing.T) {
	err := NewDatabaseError(ErrCodeDatabase, "insert failed", true, nil)

	assert.Equal(t, ErrCodeDatabase, GetErrorCode(err))
	assert.Equal(t, DomainDatabase, GetErrorDomain(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, IsDomainError(err))

	plain := errors.New("plain")
	assert.Equal(t, "unknown", GetErrorCode(plain))
	assert.False(t, IsRetryable(plain))
	assert.False(t, IsDomainError(plain))
}

func TestIsErrorCodeWalksChain(t *testing.T) {
	inner := NewPanelError(ErrCodeRemoteWrite, "update rejected", false, nil)
	outer := fmt.Errorf("provisioning aborted: %w", inner)

	assert.True(t, IsErrorCode(outer, ErrCodeRemoteWrite))
	assert.False(t, IsErrorCode(outer, ErrCodeNoCapacity))
	assert.False(t, IsErrorCode(nil, ErrCodeRemoteWrite))
}

func TestWrapWithDomain(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapWithDomain(cause, DomainDatabase, ErrCodeDatabase, "commit failed", true)

	assert.Equal(t, ErrCodeDatabase, err.Code())
	assert.ErrorIs(t, err, cause)
}
