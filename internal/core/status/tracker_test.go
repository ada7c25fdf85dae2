package status

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclyn/doclyn/internal/models"
)

func TestTracker_GetUnknown(t *testing.T) {
	tr := NewTracker()
	_, ok := tr.Get("missing")
	assert.False(t, ok)
}

func TestTracker_UpdateAndGet(t *testing.T) {
	tr := NewTracker()

	tr.Update("doc-1", func(st *models.ProcessingStatus) {
		st.FileName = "a.txt"
		st.State = models.StatePending
		st.TotalSteps = 5
	})

	st, ok := tr.Get("doc-1")
	require.True(t, ok)
	assert.Equal(t, "doc-1", st.DocumentID)
	assert.Equal(t, "a.txt", st.FileName)
	assert.Equal(t, models.StatePending, st.State)
}

func TestTracker_SnapshotsAreCopies(t *testing.T) {
	tr := NewTracker()
	tr.Update("doc-1", func(st *models.ProcessingStatus) {
		st.Progress = 20
	})

	st, _ := tr.Get("doc-1")
	st.Progress = 99 // mutating the snapshot must not touch the tracker

	again, _ := tr.Get("doc-1")
	assert.Equal(t, 20, again.Progress)
}

func TestTracker_SubscribeReceivesUpdatesInOrder(t *testing.T) {
	tr := NewTracker()
	ch, unsub := tr.Subscribe("doc-1")
	defer unsub()

	want := []int{0, 20, 40, 60, 80, 100}
	for _, p := range want {
		tr.Update("doc-1", func(st *models.ProcessingStatus) {
			st.Progress = p
		})
	}

	var got []int
	for range want {
		select {
		case st := <-ch:
			got = append(got, st.Progress)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for update")
		}
	}
	assert.Equal(t, want, got)
}

func TestTracker_NoReplayForLateSubscribers(t *testing.T) {
	tr := NewTracker()
	tr.Update("doc-1", func(st *models.ProcessingStatus) {
		st.Progress = 40
	})

	ch, unsub := tr.Subscribe("doc-1")
	defer unsub()

	select {
	case st := <-ch:
		t.Fatalf("unexpected replayed update: %+v", st)
	case <-time.After(50 * time.Millisecond):
	}

	// A late subscriber catches up with Get.
	st, ok := tr.Get("doc-1")
	require.True(t, ok)
	assert.Equal(t, 40, st.Progress)
}

func TestTracker_UnsubscribeIsIdempotent(t *testing.T) {
	tr := NewTracker()
	ch, unsub := tr.Subscribe("doc-1")

	unsub()
	unsub() // second call must be a no-op

	_, open := <-ch
	assert.False(t, open, "channel should be closed after unsubscribe")

	// Updates after unsubscribe are dropped, not delivered.
	tr.Update("doc-1", func(st *models.ProcessingStatus) {
		st.Progress = 100
	})
}

func TestTracker_SlowSubscriberDoesNotBlockUpdates(t *testing.T) {
	tr := NewTracker()
	ch, unsub := tr.Subscribe("doc-1")
	defer unsub()

	// Push many updates without reading; Update must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			tr.Update("doc-1", func(st *models.ProcessingStatus) {
				st.Progress = i % 101
			})
		}
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Update blocked on a slow subscriber")
	}

	// The backlog is still delivered in order.
	first := <-ch
	assert.Equal(t, 0, first.Progress)
}

func TestTracker_ConcurrentDocuments(t *testing.T) {
	tr := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			for p := 0; p <= 100; p += 20 {
				tr.Update(id, func(st *models.ProcessingStatus) {
					st.Progress = p
				})
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		st, ok := tr.Get(string(rune('a' + i)))
		require.True(t, ok)
		assert.Equal(t, 100, st.Progress)
	}
}
