package payment

import (
	"context"
	"sync"
	"testing"

	"itinera/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharge_IdempotentPerBooking(t *testing.T) {
	g := NewSimulatedGateway(0, logger.Discard())
	ctx := context.Background()

	ref1, err := g.Charge(ctx, "b1", 120)
	require.NoError(t, err)
	ref2, err := g.Charge(ctx, "b1", 120)
	require.NoError(t, err)

	assert.Equal(t, ref1, ref2)
	assert.Regexp(t, `^PAY-`, ref1)
	assert.Equal(t, 1, g.Captured())
}

func TestCharge_ConcurrentSameBookingCapturesOnce(t *testing.T) {
	g := NewSimulatedGateway(0, logger.Discard())

	var wg sync.WaitGroup
	refs := make([]string, 16)
	for i := range refs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			refs[i], _ = g.Charge(context.Background(), "b1", 50)
		}(i)
	}
	wg.Wait()

	for _, ref := range refs {
		assert.Equal(t, refs[0], ref)
	}
	assert.Equal(t, 1, g.Captured())
}

func TestCharge_Declined(t *testing.T) {
	attempts := 0
	g := NewSimulatedGateway(0, logger.Discard(), WithDecider(func(string) bool {
		attempts++
		return attempts == 1
	}))

	_, err := g.Charge(context.Background(), "b1", 80)
	assert.ErrorIs(t, err, ErrDeclined)
	assert.Equal(t, 0, g.Captured())

	ref, err := g.Charge(context.Background(), "b1", 80)
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
}

func TestCharge_FailureRateOneAlwaysDeclines(t *testing.T) {
	g := NewSimulatedGateway(1, logger.Discard())

	_, err := g.Charge(context.Background(), "b1", 10)

	assert.ErrorIs(t, err, ErrDeclined)
}

func TestCharge_InvalidAmount(t *testing.T) {
	g := NewSimulatedGateway(0, logger.Discard())

	_, err := g.Charge(context.Background(), "b1", -1)

	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRefund(t *testing.T) {
	g := NewSimulatedGateway(0, logger.Discard())
	ctx := context.Background()
	ref, err := g.Charge(ctx, "b1", 100)
	require.NoError(t, err)

	require.NoError(t, g.Refund(ctx, ref, 50))
	assert.InDelta(t, 50, g.Refunded(ref), 1e-9)

	assert.ErrorIs(t, g.Refund(ctx, ref, 60), ErrOverRefund)
	require.NoError(t, g.Refund(ctx, ref, 50))
	assert.ErrorIs(t, g.Refund(ctx, "PAY-missing", 1), ErrUnknownCharge)
}
