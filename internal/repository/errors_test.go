package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransientFetchError(t *testing.T) {
	err := fmt.Errorf("process: %w", &TransientFetchError{URL: "https://a", Status: 502, Err: errors.New("bad gateway")})

	assert.True(t, errors.Is(err, ErrTransientFetch))
	assert.Contains(t, err.Error(), "status 502")

	timeout := &TransientFetchError{URL: "https://a", Err: context.DeadlineExceeded}
	assert.True(t, errors.Is(timeout, context.DeadlineExceeded))
}

func TestTypedErrors(t *testing.T) {
	var noAdapter *NoAdapterError
	assert.True(t, errors.As(fmt.Errorf("resolve: %w", &NoAdapterError{URL: "https://x"}), &noAdapter))
	assert.Equal(t, "https://x", noAdapter.URL)

	var parseErr *ParseError
	assert.True(t, errors.As(&ParseError{URL: "u", Reason: "empty"}, &parseErr))
	assert.False(t, errors.As(errors.New("other"), &parseErr))
}
