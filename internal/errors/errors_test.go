package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"codeberg.org/mutker/jetpwmon/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestFactoryMessages(t *testing.T) {
	f := errors.New()

	assert.Equal(t, "Invalid sampling frequency", f.New(errors.ErrInvalidFrequency).Error())
	assert.Equal(t, "custom", f.WithMessage(errors.ErrInvalidFrequency, "custom").Error())
	assert.Equal(t, "Invalid sampling frequency: -1", f.WithData(errors.ErrInvalidFrequency, -1).Error())

	cause := stderrors.New("boom")
	wrapped := f.Wrap(errors.ErrOperationFailed, cause)
	assert.Equal(t, "Operation failed: boom", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestUnknownCodeFallsBackToCode(t *testing.T) {
	err := errors.New().New(errors.ErrorCode("sensor_unavailable"))
	assert.Equal(t, "sensor_unavailable", err.Error())
}

func TestCodeOf(t *testing.T) {
	f := errors.New()

	inner := f.New(errors.ErrInvalidFrequency)
	outer := fmt.Errorf("configure: %w", inner)

	assert.Equal(t, errors.ErrInvalidFrequency, errors.CodeOf(outer))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(stderrors.New("plain")))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(nil))
}

func TestHasCodeWalksChain(t *testing.T) {
	f := errors.New()

	err := f.Wrap(errors.ErrMainLoop, f.New(errors.ErrInvalidFrequency))

	assert.True(t, errors.HasCode(err, errors.ErrMainLoop))
	assert.True(t, errors.HasCode(err, errors.ErrInvalidFrequency))
	assert.False(t, errors.HasCode(err, errors.ErrTimeout))
}

func TestWithMessageKeepsCode(t *testing.T) {
	err := errors.New().New(errors.ErrTimeout).WithMessage("too slow").WithData(3)

	assert.Equal(t, errors.ErrTimeout, err.Code())
	assert.Equal(t, 3, err.GetData())
	assert.Equal(t, "too slow: 3", err.Error())
}
