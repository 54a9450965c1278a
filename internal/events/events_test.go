package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvent(status string) VersionStatusChanged {
	return NewVersionStatusChanged("ver_1", "doc_1", "org_1", "wf_1", status, "u1", time.Now())
}

func TestBusSingleSubscriber(t *testing.T) {
	bus := NewBus(NewMemoryDeduper(time.Minute), nil)
	require.NoError(t, bus.Subscribe(func(context.Context, VersionStatusChanged) error { return nil }))
	assert.ErrorIs(t, bus.Subscribe(func(context.Context, VersionStatusChanged) error { return nil }), ErrAlreadySubscribed)
}

func TestBusDeliversOncePerKey(t *testing.T) {
	bus := NewBus(NewMemoryDeduper(time.Minute), nil)
	var delivered []string
	require.NoError(t, bus.Subscribe(func(_ context.Context, e VersionStatusChanged) error {
		delivered = append(delivered, e.Status)
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, newEvent("approved")))
	require.NoError(t, bus.Publish(ctx, newEvent("approved")))
	require.NoError(t, bus.Publish(ctx, newEvent("rejected")))

	assert.Equal(t, []string{"approved", "rejected"}, delivered)
}

func TestBusClaimSuppressesDelivery(t *testing.T) {
	bus := NewBus(NewMemoryDeduper(time.Minute), nil)
	calls := 0
	require.NoError(t, bus.Subscribe(func(context.Context, VersionStatusChanged) error {
		calls++
		return nil
	}))

	ctx := context.Background()
	claimed, err := bus.Claim(ctx, "ver_1", "approved")
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, bus.Publish(ctx, newEvent("approved")))
	assert.Equal(t, 0, calls, "originator's own change must not be delivered")

	require.NoError(t, bus.Release(ctx, "ver_1", "approved"))
	require.NoError(t, bus.Publish(ctx, newEvent("approved")))
	assert.Equal(t, 1, calls)
}

func TestBusHandlerFailureAllowsRedelivery(t *testing.T) {
	bus := NewBus(NewMemoryDeduper(time.Minute), nil)
	failing := errors.New("downstream unavailable")
	attempts := 0
	require.NoError(t, bus.Subscribe(func(context.Context, VersionStatusChanged) error {
		attempts++
		if attempts == 1 {
			return failing
		}
		return nil
	}))

	ctx := context.Background()
	assert.ErrorIs(t, bus.Publish(ctx, newEvent("approved")), failing)
	require.NoError(t, bus.Publish(ctx, newEvent("approved")))
	assert.Equal(t, 2, attempts)
}

func TestBusRecoversHandlerPanic(t *testing.T) {
	bus := NewBus(NewMemoryDeduper(time.Minute), nil)
	require.NoError(t, bus.Subscribe(func(context.Context, VersionStatusChanged) error { panic("boom") }))
	assert.ErrorIs(t, bus.Publish(context.Background(), newEvent("approved")), ErrHandlerPanic)
}

func TestMemoryDeduperExpires(t *testing.T) {
	d := NewMemoryDeduper(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := d.Claim(ctx, "k")
	assert.True(t, ok)
	ok, _ = d.Claim(ctx, "k")
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = d.Claim(ctx, "k")
	assert.True(t, ok, "expired key should be claimable again")
}

func TestRedisDeduper(t *testing.T) {
	s := miniredis.RunT(t)
	d, err := NewRedisDeduper(context.Background(), "redis://"+s.Addr(), time.Minute)
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	ok, err := d.Claim(ctx, "ver_1:approved")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Claim(ctx, "ver_1:approved")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, s.Exists("signoff:status:ver_1:approved"))

	s.FastForward(2 * time.Minute)
	ok, err = d.Claim(ctx, "ver_1:approved")
	require.NoError(t, err)
	assert.True(t, ok, "key should expire after ttl")

	require.NoError(t, d.Release(ctx, "ver_1:approved"))
	assert.False(t, s.Exists("signoff:status:ver_1:approved"))
}

func TestNewRedisDeduperInvalidURL(t *testing.T) {
	_, err := NewRedisDeduper(context.Background(), "not-a-url", time.Minute)
	assert.Error(t, err)
}
