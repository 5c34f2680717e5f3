package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	IsScam     bool    `json:"is_scam"`
	Confidence float64 `json:"confidence"`
}

func TestComputeOrFetch_ComputesOnceThenHits(t *testing.T) {
	c, _, _ := newTestCache(t, 10)
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (verdict, error) {
		calls++
		return verdict{IsScam: true, Confidence: 0.9}, nil
	}

	params := map[string]string{"message": "send OTP"}
	v1, err := ComputeOrFetch(ctx, c, "model_predictions", params, 0, compute)
	require.NoError(t, err)
	v2, err := ComputeOrFetch(ctx, c, "model_predictions", map[string]string{"message": "send OTP"}, 0, compute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, v1, v2)
}

func TestComputeOrFetch_ErrorIsNotCached(t *testing.T) {
	c, _, local := newTestCache(t, 10)
	ctx := context.Background()

	boom := errors.New("model down")
	_, err := ComputeOrFetch(ctx, c, "model_predictions", "x", time.Minute, func(context.Context) (verdict, error) {
		return verdict{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, local.Len())
}

func TestInvalidator_ClearsDependentNamespaces(t *testing.T) {
	c, _, _ := newTestCache(t, 10)
	ctx := context.Background()

	c.Set(ctx, "analytics:dash", []byte("1"), 0)
	c.Set(ctx, "intelligence:x", []byte("2"), 0)
	c.Set(ctx, "agent_reply:y", []byte("3"), 0)

	inv := NewInvalidator(c)
	inv.AddDependency("scam_detection", "analytics")
	inv.AddDependency("scam_detection", "intelligence")
	inv.AddDependency("scam_detection", "analytics")
	assert.Equal(t, []string{"analytics", "intelligence"}, inv.Dependents("scam_detection"))

	n := inv.Invalidate(ctx, "scam_detection")
	assert.EqualValues(t, 2, n)

	_, ok := c.Get(ctx, "agent_reply:y")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "analytics:dash")
	assert.False(t, ok)

	assert.Zero(t, inv.Invalidate(ctx, "nothing"))
}
