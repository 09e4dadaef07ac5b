package base

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cause := errors.New("429 too many requests")
	err := Classify(ErrRateLimited, cause)

	assert.True(t, IsRateLimited(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "429 too many requests")
	assert.Nil(t, Classify(ErrRateLimited, nil))

	wrapped := pkgerrors.Wrap(err, "trash message abc")
	assert.True(t, IsRateLimited(wrapped), "classification survives pkg/errors wrapping")
}

func TestRetryError(t *testing.T) {
	err := &RetryError{Attempts: 4, Err: Classify(ErrRateLimited, errors.New("slow down"))}

	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.False(t, IsRetryable(err))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limited", err: Classify(ErrRateLimited, errors.New("x")), want: true},
		{name: "network", err: Classify(ErrNetworkUnavailable, errors.New("x")), want: true},
		{name: "hard failure", err: Classify(ErrProviderHardFailure, errors.New("x")), want: true},
		{name: "validation", err: Validationf("bad target %q", "x"), want: false},
		{name: "undo impossible", err: ErrUndoImpossible, want: false},
		{name: "unclassified", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "validation", err: Validationf("bad id %q", "x"), want: true},
		{name: "undo impossible", err: pkgerrors.Wrap(ErrUndoImpossible, "unsubscribe"), want: true},
		{name: "rate limited", err: Classify(ErrRateLimited, errors.New("429"))},
		{name: "exhausted", err: &RetryError{Attempts: 4, Err: ErrRateLimited}},
		{name: "hard failure", err: Classify(ErrProviderHardFailure, errors.New("500"))},
		{name: "nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPermanent(tt.err))
		})
	}
}
