package broadcast

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/puzzleserver/models"
)

func TestLocalBridgeFansOutToAllSubscribers(t *testing.T) {
	b := NewLocalBridge()
	ctx := context.Background()

	var got1, got2 []models.EventKind
	require.NoError(t, b.Subscribe(ctx, func(ev *models.Event) {
		got1 = append(got1, ev.Kind)
	}))
	require.NoError(t, b.Subscribe(ctx, func(ev *models.Event) {
		got2 = append(got2, ev.Kind)
	}))

	require.NoError(t, b.Publish(ctx, "room:room1", &models.Event{Kind: models.EventRoomMembersChanged}))
	require.NoError(t, b.Publish(ctx, "room:room1", &models.Event{Kind: models.EventTableCreated}))

	want := []models.EventKind{models.EventRoomMembersChanged, models.EventTableCreated}
	assert.Equal(t, want, got1)
	assert.Equal(t, want, got2)
}

func TestLocalBridgeConcurrentPublishAndSubscribe(t *testing.T) {
	b := NewLocalBridge()
	ctx := context.Background()

	var count sync.Map
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			b.Subscribe(ctx, func(ev *models.Event) {
				count.Store(n, true)
			})
			b.Publish(ctx, "room:room1", &models.Event{Kind: models.EventChatMessage})
		}(i)
	}
	wg.Wait()

	// 自己订阅之后的发布必达
	require.NoError(t, b.Publish(ctx, "room:room1", &models.Event{Kind: models.EventChatMessage}))
	for i := 0; i < 8; i++ {
		_, ok := count.Load(i)
		assert.True(t, ok)
	}
}
