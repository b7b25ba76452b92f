package channels_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"commons-chat/internal/channels"
	"commons-chat/internal/mocks"
	chat_errors "commons-chat/pkg/errors"
)

func waitForState(t *testing.T, h *channels.Handle, want channels.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.State() == want
	}, time.Second, 5*time.Millisecond, "handle never reached state %s", want)
}

func TestGetOrCreateReturnsSameHandle(t *testing.T) {
	b := mocks.NewMemoryBroadcaster()
	r := channels.NewRegistry(b, zap.NewNop())
	ctx := context.Background()

	first := r.GetOrCreate(ctx, "conn-1", "conversation:abc:messages")
	second := r.GetOrCreate(ctx, "conn-1", "conversation:abc:messages")

	assert.Same(t, first, second)
	assert.Equal(t, 1, r.ChannelCount("conn-1"))
}

func TestGetOrCreateConcurrent(t *testing.T) {
	b := mocks.NewMemoryBroadcaster()
	b.SubscribeDelay = 20 * time.Millisecond
	r := channels.NewRegistry(b, zap.NewNop())
	ctx := context.Background()

	const n = 16
	handles := make([]*channels.Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = r.GetOrCreate(ctx, "conn-1", "community:xyz:messages")
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, handles[0], handles[i])
	}

	waitForState(t, handles[0], channels.StateSubscribed)
	assert.Equal(t, 1, b.SubscriberCount("community:xyz:messages"))
}

func TestConnectionsDoNotShareChannels(t *testing.T) {
	b := mocks.NewMemoryBroadcaster()
	r := channels.NewRegistry(b, zap.NewNop())
	ctx := context.Background()

	h1 := r.GetOrCreate(ctx, "conn-1", "conversation:abc:messages")
	h2 := r.GetOrCreate(ctx, "conn-2", "conversation:abc:messages")

	assert.NotSame(t, h1, h2)
	waitForState(t, h1, channels.StateSubscribed)
	waitForState(t, h2, channels.StateSubscribed)
	assert.Equal(t, 2, b.SubscriberCount("conversation:abc:messages"))
}

func TestListenerAttachedBeforeAckReceivesFrames(t *testing.T) {
	b := mocks.NewMemoryBroadcaster()
	b.SubscribeDelay = 30 * time.Millisecond
	r := channels.NewRegistry(b, zap.NewNop())
	ctx := context.Background()

	h := r.GetOrCreate(ctx, "conn-1", "conversation:abc:messages")
	assert.Equal(t, channels.StateSubscribing, h.State())

	var mu sync.Mutex
	var got [][]byte
	h.Attach(func(payload []byte) {
		mu.Lock()
		got = append(got, payload)
		mu.Unlock()
	})

	waitForState(t, h, channels.StateSubscribed)
	require.NoError(t, h.Publish(ctx, []byte(`{"event":"x"}`)))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, []byte(`{"event":"x"}`), got[0])
}

func TestSubscribeErrorThenRetry(t *testing.T) {
	b := mocks.NewMemoryBroadcaster()
	b.SubscribeErr = errors.New("transport down")
	r := channels.NewRegistry(b, zap.NewNop())
	ctx := context.Background()

	h := r.GetOrCreate(ctx, "conn-1", "conversation:abc:messages")
	waitForState(t, h, channels.StateError)

	// Transport recovers; the next access resubscribes the same handle.
	b.SubscribeErr = nil
	again := r.GetOrCreate(ctx, "conn-1", "conversation:abc:messages")
	assert.Same(t, h, again)
	waitForState(t, h, channels.StateSubscribed)
	assert.Equal(t, 1, b.SubscriberCount("conversation:abc:messages"))
}

func TestCloseDuringSubscribeTearsDown(t *testing.T) {
	b := mocks.NewMemoryBroadcaster()
	b.SubscribeDelay = 30 * time.Millisecond
	r := channels.NewRegistry(b, zap.NewNop())
	ctx := context.Background()

	h := r.GetOrCreate(ctx, "conn-1", "conversation:abc:messages")
	r.Unsubscribe("conn-1", "conversation:abc:messages")
	assert.Equal(t, channels.StateClosed, h.State())

	// The in-flight subscribe completes after the close and must not leave a
	// dangling transport subscription behind.
	require.Eventually(t, func() bool {
		return b.SubscriberCount("conversation:abc:messages") == 0
	}, time.Second, 5*time.Millisecond)
}

func TestPublishOnClosedChannel(t *testing.T) {
	b := mocks.NewMemoryBroadcaster()
	r := channels.NewRegistry(b, zap.NewNop())
	ctx := context.Background()

	h := r.GetOrCreate(ctx, "conn-1", "conversation:abc:messages")
	waitForState(t, h, channels.StateSubscribed)
	r.Unsubscribe("conn-1", "conversation:abc:messages")

	err := h.Publish(ctx, []byte("late"))
	assert.ErrorIs(t, err, chat_errors.ErrChannelClosed)
}

func TestUnsubscribeAll(t *testing.T) {
	b := mocks.NewMemoryBroadcaster()
	r := channels.NewRegistry(b, zap.NewNop())
	ctx := context.Background()

	h1 := r.GetOrCreate(ctx, "conn-1", "conversation:abc:messages")
	h2 := r.GetOrCreate(ctx, "conn-1", "conversation:abc:typing")
	other := r.GetOrCreate(ctx, "conn-2", "conversation:abc:messages")
	waitForState(t, h1, channels.StateSubscribed)
	waitForState(t, h2, channels.StateSubscribed)
	waitForState(t, other, channels.StateSubscribed)

	r.UnsubscribeAll("conn-1")

	assert.Equal(t, channels.StateClosed, h1.State())
	assert.Equal(t, channels.StateClosed, h2.State())
	assert.Equal(t, 0, r.ChannelCount("conn-1"))

	// Other connections keep their channels.
	assert.Equal(t, channels.StateSubscribed, other.State())
	assert.Equal(t, 1, b.SubscriberCount("conversation:abc:messages"))
}

func TestReopenAfterUnsubscribe(t *testing.T) {
	b := mocks.NewMemoryBroadcaster()
	r := channels.NewRegistry(b, zap.NewNop())
	ctx := context.Background()

	h := r.GetOrCreate(ctx, "conn-1", "conversation:abc:messages")
	waitForState(t, h, channels.StateSubscribed)
	r.Unsubscribe("conn-1", "conversation:abc:messages")

	reopened := r.GetOrCreate(ctx, "conn-1", "conversation:abc:messages")
	assert.NotSame(t, h, reopened)
	waitForState(t, reopened, channels.StateSubscribed)
}
