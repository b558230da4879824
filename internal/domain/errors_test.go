package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectivityError_IsErrConnectivity(t *testing.T) {
	cause := errors.New("dial tcp: connect: network is unreachable")
	err := &ConnectivityError{Store: "research", Cause: cause}

	assert.True(t, errors.Is(err, ErrConnectivity))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "research")
	assert.Contains(t, err.Error(), cause.Error())
}

func TestConnectivityError_UnwrapReturnsCause(t *testing.T) {
	cause := errors.New("boom")
	err := &ConnectivityError{Store: "meta", Cause: cause}

	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestSentinelErrors_AreDistinguishableViaErrorsIs(t *testing.T) {
	stringWrapped := errors.New("wrapped: " + ErrPaywalled.Error())
	assert.False(t, errors.Is(stringWrapped, ErrPaywalled), "plain string wrapping should not satisfy errors.Is")

	properlyWrapped := fmt.Errorf("extraction failed: %w", ErrPaywalled)
	assert.True(t, errors.Is(properlyWrapped, ErrPaywalled))
}
