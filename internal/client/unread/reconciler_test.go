package unread_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petchat/internal/client/store"
	"petchat/internal/client/store/storetest"
	"petchat/internal/client/unread"
)

func TestUnknownUntilFirstPoll(t *testing.T) {
	fake := storetest.New()
	fake.SetUnread(3)
	r := unread.New(fake, "owner", time.Minute, nil)

	_, known := r.Count()
	assert.False(t, known)

	r.OnLocalRead(1)
	_, known = r.Count()
	assert.False(t, known)

	require.NoError(t, r.Refresh(context.Background()))
	n, known := r.Count()
	assert.True(t, known)
	assert.Equal(t, 3, n)
}

func TestLocalReadsFloorAtZero(t *testing.T) {
	fake := storetest.New()
	fake.SetUnread(2)
	r := unread.New(fake, "owner", time.Minute, nil)
	require.NoError(t, r.Refresh(context.Background()))

	r.OnLocalRead(1)
	n, _ := r.Count()
	assert.Equal(t, 1, n)
	r.OnLocalRead(5)
	r.OnLocalDelete()
	n, _ = r.Count()
	assert.Equal(t, 0, n)
}

func TestPollWinsOverLocalState(t *testing.T) {
	fake := storetest.New()
	fake.SetUnread(4)
	r := unread.New(fake, "owner", time.Minute, nil)
	require.NoError(t, r.Refresh(context.Background()))
	r.OnLocalRead(4)

	fake.SetUnread(6)
	require.NoError(t, r.Refresh(context.Background()))
	n, _ := r.Count()
	assert.Equal(t, 6, n)
}

func TestFirstPollAppliesDespiteEarlierLocalRead(t *testing.T) {
	fake := storetest.New()
	fake.SetUnread(5)
	r := unread.New(fake, "owner", time.Minute, nil)

	release := fake.Hold("UnreadCount")
	done := make(chan error, 1)
	go func() { done <- r.Refresh(context.Background()) }()
	require.Eventually(t, func() bool { return fake.Calls("UnreadCount") == 1 }, time.Second, time.Millisecond)

	r.OnLocalRead(1)
	release()
	require.NoError(t, <-done)

	n, known := r.Count()
	assert.True(t, known)
	assert.Equal(t, 5, n)
}

func TestStalePollIsDiscarded(t *testing.T) {
	fake := storetest.New()
	fake.SetUnread(5)
	r := unread.New(fake, "owner", time.Minute, nil)
	require.NoError(t, r.Refresh(context.Background()))

	release := fake.Hold("UnreadCount")
	done := make(chan error, 1)
	go func() { done <- r.Refresh(context.Background()) }()
	require.Eventually(t, func() bool { return fake.Calls("UnreadCount") == 2 }, time.Second, time.Millisecond)

	r.OnLocalRead(2)
	release()
	require.NoError(t, <-done)

	n, _ := r.Count()
	assert.Equal(t, 3, n)
}

func TestFailedPollKeepsCount(t *testing.T) {
	fake := storetest.New()
	fake.SetUnread(2)
	r := unread.New(fake, "owner", time.Minute, nil)
	require.NoError(t, r.Refresh(context.Background()))

	fake.Fail("UnreadCount", &store.Error{Kind: store.KindUnavailable})
	err := r.Refresh(context.Background())
	assert.True(t, store.IsRetryable(err))
	n, known := r.Count()
	assert.True(t, known)
	assert.Equal(t, 2, n)
}

func TestSubscribersSeeChanges(t *testing.T) {
	fake := storetest.New()
	fake.SetUnread(2)
	r := unread.New(fake, "owner", time.Minute, nil)

	var mu sync.Mutex
	var seen []int
	cancel := r.Subscribe(func(n int) {
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})
	require.NoError(t, r.Refresh(context.Background()))
	require.NoError(t, r.Refresh(context.Background()))
	r.OnLocalRead(1)
	cancel()
	r.OnLocalRead(1)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 1}, seen)
}

func TestStartPollsAndStopWaits(t *testing.T) {
	fake := storetest.New()
	fake.SetUnread(1)
	r := unread.New(fake, "owner", 5*time.Millisecond, nil)

	r.Start(context.Background())
	r.Start(context.Background())
	require.Eventually(t, func() bool { return fake.Calls("UnreadCount") >= 3 }, time.Second, time.Millisecond)
	r.Stop()
	r.Stop()

	calls := fake.Calls("UnreadCount")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, fake.Calls("UnreadCount"))
	n, known := r.Count()
	assert.True(t, known)
	assert.Equal(t, 1, n)
}

func TestNotificationOperationsAdjustCount(t *testing.T) {
	fake := storetest.New()
	fake.SetUnread(3)
	r := unread.New(fake, "owner", time.Minute, nil)
	require.NoError(t, r.Refresh(context.Background()))

	_, err := r.Notifications(context.Background(), true)
	require.NoError(t, err)
	require.NoError(t, r.MarkRead(context.Background(), "n1"))
	require.NoError(t, r.Delete(context.Background(), "n2", true))
	require.NoError(t, r.Delete(context.Background(), "n3", false))
	n, _ := r.Count()
	assert.Equal(t, 1, n)

	fake.Fail("MarkNotificationRead", &store.Error{Kind: store.KindNotFound})
	err = r.MarkRead(context.Background(), "gone")
	assert.Equal(t, store.KindNotFound, store.KindOf(err))
	n, _ = r.Count()
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, fake.Calls("ListUnreadNotifications"))
}
