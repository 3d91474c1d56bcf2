package replication

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nextWithin waits up to d for the next event of s.
func nextWithin(s *Subscription, d time.Duration) (StreamEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return s.Next(ctx)
}

// TestPublisher_SubscribeBeforeAndAfterPublish tests that only earlier subscribers see an event
func TestPublisher_SubscribeBeforeAndAfterPublish(t *testing.T) {
	pub := NewPublisher(EntityCollectionCard)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	early := pub.Subscribe(ctx, "u1")

	batch := Batch{
		Documents:  []Document{{"id": "doc1"}, {"id": "doc2"}},
		Checkpoint: &Checkpoint{ID: "doc2", UpdatedAt: 100},
	}
	pub.Publish("u1", batch)

	late := pub.Subscribe(ctx, "u1")

	// ASSERT: early subscriber receives exactly the payload
	ev, err := nextWithin(early, time.Second)
	require.NoError(t, err)
	assert.Equal(t, batch, ev)

	_, err = nextWithin(early, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "only one event was published")

	// ASSERT: late subscriber sees nothing until the next publish
	_, err = nextWithin(late, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	pub.Publish("u1", Resync{})
	ev, err = nextWithin(late, time.Second)
	require.NoError(t, err)
	assert.Equal(t, Resync{}, ev)
}

// TestPublisher_Resync tests that a resync arrives as the signal, not a batch
func TestPublisher_Resync(t *testing.T) {
	pub := NewPublisher(EntityTag)
	sub := pub.Subscribe(context.Background(), "u1")
	defer sub.Close()

	pub.Publish("u1", Resync{})

	ev, err := nextWithin(sub, time.Second)
	require.NoError(t, err)
	_, isBatch := ev.(Batch)
	assert.False(t, isBatch)
	assert.IsType(t, Resync{}, ev)
}

// TestPublisher_Multicast tests that every subscriber of an owner gets its own copy
func TestPublisher_Multicast(t *testing.T) {
	pub := NewPublisher(EntityDeck)
	tab1 := pub.Subscribe(context.Background(), "u1")
	tab2 := pub.Subscribe(context.Background(), "u1")
	other := pub.Subscribe(context.Background(), "u2")
	defer tab1.Close()
	defer tab2.Close()
	defer other.Close()

	for i := range 3 {
		pub.Publish("u1", Batch{Checkpoint: &Checkpoint{ID: fmt.Sprint(i), UpdatedAt: int64(i)}})
	}

	for _, sub := range []*Subscription{tab1, tab2} {
		for i := range 3 {
			ev, err := nextWithin(sub, time.Second)
			require.NoError(t, err)
			assert.Equal(t, int64(i), ev.(Batch).Checkpoint.UpdatedAt, "events arrive in publish order")
		}
	}

	_, err := nextWithin(other, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "owners are isolated")
}

func TestPublisher_PublishWithoutListeners(t *testing.T) {
	pub := NewPublisher(EntityDeck)

	assert.NotPanics(t, func() {
		pub.Publish("nobody", Resync{})
	})
	assert.Equal(t, 0, pub.Owners())
}

// TestPublisher_CancelBeforePublish tests that a cancelled subscription yields nothing and ends cleanly
func TestPublisher_CancelBeforePublish(t *testing.T) {
	pub := NewPublisher(EntityDeckCard)
	ctx, cancel := context.WithCancel(context.Background())

	sub := pub.Subscribe(ctx, "u1")
	cancel()

	ev, err := nextWithin(sub, time.Second)
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, io.EOF)

	pub.Publish("u1", Resync{})
	_, err = nextWithin(sub, time.Second)
	assert.ErrorIs(t, err, io.EOF, "no yields after cancellation")

	assert.Eventually(t, func() bool {
		return pub.SubscriberCount("u1") == 0 && pub.Owners() == 0
	}, time.Second, 5*time.Millisecond, "registration must be released")
}

func TestSubscription_DoubleClose(t *testing.T) {
	pub := NewPublisher(EntityTag)
	ctx, cancel := context.WithCancel(context.Background())
	sub := pub.Subscribe(ctx, "u1")

	assert.NotPanics(t, func() {
		sub.Close()
		sub.Close()
		cancel()
	})
	assert.Equal(t, 0, pub.SubscriberCount("u1"))

	select {
	case <-sub.Done():
	default:
		t.Fatal("Done should be closed")
	}
}

// TestPublisher_ConnectDisconnectCycles tests that repeated connections do not grow the registry
func TestPublisher_ConnectDisconnectCycles(t *testing.T) {
	pub := NewPublisher(EntityCollectionCardLocation)

	for range 100 {
		ctx, cancel := context.WithCancel(context.Background())
		pub.Subscribe(ctx, "u1")
		pub.Publish("u1", Resync{})
		cancel()
	}

	assert.Eventually(t, func() bool {
		return pub.Owners() == 0
	}, time.Second, 5*time.Millisecond)
}

// TestPublisher_UnsubscribeDuringPublish tests concurrent publish and unsubscribe
func TestPublisher_UnsubscribeDuringPublish(t *testing.T) {
	pub := NewPublisher(EntityDeck)
	keeper := pub.Subscribe(context.Background(), "u1")
	defer keeper.Close()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := pub.Subscribe(context.Background(), "u1")
			sub.Close()
		}()
	}
	for i := range 50 {
		pub.Publish("u1", Batch{Checkpoint: &Checkpoint{ID: "x", UpdatedAt: int64(i)}})
	}
	wg.Wait()

	for i := range 50 {
		ev, err := nextWithin(keeper, time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(i), ev.(Batch).Checkpoint.UpdatedAt)
	}
	assert.Equal(t, 1, pub.SubscriberCount("u1"))
}

// TestPublisher_OverflowForcesResync tests that a stalled subscriber collapses to a resync
func TestPublisher_OverflowForcesResync(t *testing.T) {
	pub := NewPublisher(EntityCollectionCard, WithMaxPending(2))
	sub := pub.Subscribe(context.Background(), "u1")
	defer sub.Close()

	for i := range 3 {
		pub.Publish("u1", Batch{Checkpoint: &Checkpoint{ID: "c", UpdatedAt: int64(i)}})
	}

	ev, err := nextWithin(sub, time.Second)
	require.NoError(t, err)
	assert.Equal(t, Resync{}, ev)
	assert.True(t, sub.Overflowed())

	_, err = nextWithin(sub, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
