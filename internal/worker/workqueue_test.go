package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testTask struct {
	ID   int
	Data string
}

func TestWorkQueue_Slots(t *testing.T) {
	tests := []struct {
		name     string
		max      int
		hasSlots bool
	}{
		{"unlimited", 0, false},
		{"negative is unlimited", -1, false},
		{"single task in flight", 1, true},
		{"limited", 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wq := newWorkQueue[testTask](tt.max)
			require.NotNil(t, wq.tasks)

			if tt.hasSlots {
				require.Equal(t, tt.max, cap(wq.slots))
			} else {
				require.Nil(t, wq.slots)
			}
		})
	}
}

func TestWorkQueue_ReserveBlocksWhenFull(t *testing.T) {
	wq := newWorkQueue[testTask](1)

	require.NoError(t, wq.reserve(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, wq.reserve(ctx), context.DeadlineExceeded)

	wq.release()
	require.NoError(t, wq.reserve(context.Background()))
}

func TestWorkQueue_ReserveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, max := range []int{0, 1} {
		wq := newWorkQueue[testTask](max)
		require.ErrorIs(t, wq.reserve(ctx), context.Canceled)
	}
}

func TestWorkQueue_Add(t *testing.T) {
	t.Run("handed to reader", func(t *testing.T) {
		wq := newWorkQueue[testTask](1)

		done := make(chan *testTask, 1)
		go func() {
			done <- <-wq.tasks
		}()

		task := &testTask{ID: 1, Data: "identifyAssetClass"}
		require.NoError(t, wq.add(context.Background(), task))
		require.Equal(t, task, <-done)
	})

	t.Run("no reader", func(t *testing.T) {
		wq := newWorkQueue[testTask](1)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		require.ErrorIs(t, wq.add(ctx, &testTask{ID: 1}), context.DeadlineExceeded)
	})
}

func TestWorkQueue_ReleaseWithoutReserve(t *testing.T) {
	wq := newWorkQueue[testTask](1)

	require.NotPanics(t, func() {
		wq.release()
		wq.release()
	})

	require.NoError(t, wq.reserve(context.Background()))
	require.Len(t, wq.slots, 1)
}
