package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recollector/auth-service/internal/testhelpers"
	"github.com/recollector/auth-service/internal/utils"
)

func TestEmailRateLimits(t *testing.T) {
	clock := testhelpers.NewFakeClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	store := testhelpers.NewMemoryRateLimits(clock)
	limiter := NewRateLimiterService(store, EmailLimits{Global: 100, PerIP: 3, PerAddress: 2, Window: time.Hour})
	ctx := context.Background()

	require.NoError(t, limiter.CheckEmailRateLimits(ctx, "203.0.113.1", "a@example.com"))
	require.NoError(t, limiter.CheckEmailRateLimits(ctx, "203.0.113.1", "A@example.com"))
	assert.ErrorIs(t, limiter.CheckEmailRateLimits(ctx, "203.0.113.2", "a@example.com"), utils.ErrRateLimitExceeded,
		"per-address limit is case-insensitive")

	require.NoError(t, limiter.CheckEmailRateLimits(ctx, "203.0.113.1", "b@example.com"))
	assert.ErrorIs(t, limiter.CheckEmailRateLimits(ctx, "203.0.113.1", "c@example.com"), utils.ErrRateLimitExceeded,
		"per-IP limit")

	clock.Advance(time.Hour)
	assert.NoError(t, limiter.CheckEmailRateLimits(ctx, "203.0.113.1", "a@example.com"), "window rolls over")
}

func TestEmailRateLimitsGlobal(t *testing.T) {
	clock := testhelpers.NewFakeClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	limiter := NewRateLimiterService(testhelpers.NewMemoryRateLimits(clock),
		EmailLimits{Global: 2, PerIP: 10, PerAddress: 10, Window: time.Hour})
	ctx := context.Background()

	require.NoError(t, limiter.CheckEmailRateLimits(ctx, "198.51.100.1", "x@example.com"))
	require.NoError(t, limiter.CheckEmailRateLimits(ctx, "198.51.100.2", "y@example.com"))
	assert.ErrorIs(t, limiter.CheckEmailRateLimits(ctx, "198.51.100.3", "z@example.com"), utils.ErrRateLimitExceeded)
}

func TestEmailRateLimitsStoreError(t *testing.T) {
	clock := testhelpers.NewFakeClock(time.Now())
	store := testhelpers.NewMemoryRateLimits(clock)
	store.Err = errors.New("db down")
	limiter := NewRateLimiterService(store, EmailLimits{Global: 1, PerIP: 1, PerAddress: 1, Window: time.Hour})

	err := limiter.CheckEmailRateLimits(context.Background(), "198.51.100.1", "x@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, utils.ErrRateLimitExceeded)
}

func TestRateLimitCleanup(t *testing.T) {
	clock := testhelpers.NewFakeClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	store := testhelpers.NewMemoryRateLimits(clock)
	ctx := context.Background()

	_, err := store.IncrementAndCheck(ctx, "old", 1, time.Minute)
	require.NoError(t, err)
	_, err = store.IncrementAndCheck(ctx, "fresh", 1, time.Hour)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.NoError(t, NewRateLimitCleanupService(store).CleanupDaily(ctx))
	assert.Equal(t, 1, store.Len())

	store.Err = errors.New("db down")
	assert.Error(t, NewRateLimitCleanupService(store).CleanupDaily(ctx))
}
