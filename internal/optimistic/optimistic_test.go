package optimistic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunConfirmSuccessKeepsLocalState(t *testing.T) {
	value := 0
	err := Run(context.Background(), Op{
		Apply:      func() { value = 1 },
		Confirm:    func(ctx context.Context) error { return nil },
		Compensate: func() { value = 0 },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, value)
}

func TestRunConfirmFailureRollsBack(t *testing.T) {
	value := 0
	err := Run(context.Background(), Op{
		Apply:      func() { value = 1 },
		Confirm:    func(ctx context.Context) error { return assert.AnError },
		Compensate: func() { value = 0 },
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, value)
}

func TestRunWithoutConfirmIsLocalOnly(t *testing.T) {
	applied := false
	require.NoError(t, Run(context.Background(), Op{Apply: func() { applied = true }}))
	assert.True(t, applied)
}
