package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/chris-alexander-pop/busrt/pkg/events"
	"github.com/chris-alexander-pop/busrt/pkg/events/adapters/memory"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToEverySubscriber(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	var got1, got2 events.Event
	require.NoError(t, b.Subscribe(ctx, "user.created", func(ctx context.Context, e events.Event) error {
		got1 = e
		return nil
	}))
	require.NoError(t, b.Subscribe(ctx, "user.created", func(ctx context.Context, e events.Event) error {
		got2 = e
		return nil
	}))

	event := events.Event{Type: "user.created", Payload: "alice"}
	require.NoError(t, b.Publish(ctx, "user.created", event))

	require.Equal(t, "alice", got1.Payload)
	require.Equal(t, "alice", got2.Payload)
}

func TestPublishStopsAtFirstHandlerError(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	boom := errors.New("boom")

	calledSecond := false
	require.NoError(t, b.Subscribe(ctx, "t", func(ctx context.Context, e events.Event) error { return boom }))
	require.NoError(t, b.Subscribe(ctx, "t", func(ctx context.Context, e events.Event) error {
		calledSecond = true
		return nil
	}))

	err := b.Publish(ctx, "t", events.Event{})
	require.ErrorIs(t, err, boom)
	require.False(t, calledSecond)
}

func TestCloseRejectsFurtherPublishAndSubscribe(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	require.NoError(t, b.Close())

	err := b.Publish(ctx, "t", events.Event{})
	require.Error(t, err)

	err = b.Subscribe(ctx, "t", func(ctx context.Context, e events.Event) error { return nil })
	require.Error(t, err)
}

func TestUnrelatedTopicsDoNotCrossDeliver(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	called := false
	require.NoError(t, b.Subscribe(ctx, "a", func(ctx context.Context, e events.Event) error {
		called = true
		return nil
	}))

	require.NoError(t, b.Publish(ctx, "b", events.Event{}))
	require.False(t, called)
}
