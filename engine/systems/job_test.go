package systems

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/shaderpixel/engine/core"
)

func TestNewJobSystemValidation(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestSingleWorkerRunsInOrder(t *testing.T) {
	js, err := NewJobSystem(1, 16)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, js.Submit(JobTask{
			Name: "ordered",
			Run: func() error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			},
		}))
	}
	require.NoError(t, js.Shutdown())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestCallbacks(t *testing.T) {
	js, err := NewJobSystem(2, 4)
	require.NoError(t, err)

	var completed, failed atomic.Int32
	var gotErr error
	boom := errors.New("boom")
	require.NoError(t, js.Submit(JobTask{
		Name:       "ok",
		Run:        func() error { return nil },
		OnComplete: func() { completed.Add(1) },
		OnFailure:  func(error) { failed.Add(1) },
	}))
	require.NoError(t, js.Submit(JobTask{
		Name:       "bad",
		Run:        func() error { return boom },
		OnComplete: func() { completed.Add(1) },
		OnFailure: func(err error) {
			gotErr = err
			failed.Add(1)
		},
	}))
	require.NoError(t, js.Shutdown())

	assert.Equal(t, int32(1), completed.Load())
	assert.Equal(t, int32(1), failed.Load())
	assert.ErrorIs(t, gotErr, boom)
}

func TestSubmitAfterShutdown(t *testing.T) {
	js, err := NewJobSystem(1, 0)
	require.NoError(t, err)
	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())

	err = js.Submit(JobTask{Name: "late", Run: func() error { return nil }})
	assert.ErrorIs(t, err, core.ErrQueueClosed)
	assert.Error(t, js.Submit(JobTask{Name: "empty"}))
}

func TestTrySubmitDoesNotBlock(t *testing.T) {
	js, err := NewJobSystem(1, 1)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, js.Submit(JobTask{Name: "busy", Run: func() error {
		close(started)
		<-release
		return nil
	}}))
	<-started
	require.NoError(t, js.TrySubmit(JobTask{Name: "queued", Run: func() error { return nil }}))
	assert.ErrorIs(t, js.TrySubmit(JobTask{Name: "overflow", Run: func() error { return nil }}), ErrQueueFull)

	close(release)
	require.NoError(t, js.Shutdown())
	assert.ErrorIs(t, js.TrySubmit(JobTask{Name: "late", Run: func() error { return nil }}), core.ErrQueueClosed)
}
