package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpensAfterConsecutiveFailureThreshold(t *testing.T) {
	b := New(3, time.Minute)
	assert.Equal(t, Closed, b.State())

	for i := 0; i < 2; i++ {
		assert.True(t, b.Allow())
		b.Failure()
	}
	assert.Equal(t, Closed, b.State())

	assert.True(t, b.Allow())
	b.Failure()
	assert.Equal(t, Open, b.State())
	assert.False(t, b.Allow())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New(3, time.Minute)
	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()
	assert.Equal(t, Closed, b.State())
}

func TestHalfOpenAfterTimeoutAllowsOneTrial(t *testing.T) {
	b := New(1, 5*time.Millisecond)
	b.Failure()
	require.Equal(t, Open, b.State())
	assert.False(t, b.Allow())

	time.Sleep(10 * time.Millisecond)
	assert.True(t, b.Allow())
	assert.Equal(t, HalfOpen, b.State())
	assert.False(t, b.Allow()) // second concurrent trial refused
}

func TestHalfOpenSuccessClosesBreaker(t *testing.T) {
	b := New(1, 5*time.Millisecond)
	b.Failure()
	time.Sleep(10 * time.Millisecond)
	require.True(t, b.Allow())
	b.Success()
	assert.Equal(t, Closed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(1, 5*time.Millisecond)
	b.Failure()
	time.Sleep(10 * time.Millisecond)
	require.True(t, b.Allow())
	b.Failure()
	assert.Equal(t, Open, b.State())
}

func TestCallReturnsErrOpenWithoutInvokingFn(t *testing.T) {
	b := New(1, time.Minute)
	b.Failure()
	require.Equal(t, Open, b.State())

	called := false
	err := b.Call(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestCallPropagatesFnError(t *testing.T) {
	b := New(3, time.Minute)
	boom := errors.New("boom")
	err := b.Call(func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Closed, b.State())
}

func TestStateStringValues(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half_open", HalfOpen.String())
}
