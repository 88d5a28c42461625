package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errDown = errors.New("down")

func failing(context.Context) error { return errDown }
func ok(context.Context) error      { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New("test", WithFailureThreshold(2), WithTimeout(time.Hour))

	assert.ErrorIs(t, cb.Execute(context.Background(), failing), errDown)
	assert.True(t, cb.IsClosed())
	assert.ErrorIs(t, cb.Execute(context.Background(), failing), errDown)
	assert.True(t, cb.IsOpen())

	assert.ErrorIs(t, cb.Execute(context.Background(), ok), ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	var transitions []State
	cb := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(1),
		WithTimeout(time.Millisecond),
		WithOnStateChange(func(_ string, _, to State) { transitions = append(transitions, to) }),
	)

	_ = cb.Execute(context.Background(), failing)
	time.Sleep(5 * time.Millisecond)

	assert.NoError(t, cb.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreaker_IsFailureFiltersErrors(t *testing.T) {
	cb := New("test",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, errDown) }),
	)

	_ = cb.Execute(context.Background(), failing)
	assert.True(t, cb.IsClosed())
}

func TestCircuitBreaker_FallbackWhenOpen(t *testing.T) {
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Hour))
	_ = cb.Execute(context.Background(), failing)

	err := cb.ExecuteWithFallback(context.Background(), ok, func(error) error { return nil })
	assert.NoError(t, err)
}
