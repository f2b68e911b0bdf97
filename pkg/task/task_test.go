package task

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zsxqsync/pkg/clock"
	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/syncer"
)

func TestLaunchAndWait(t *testing.T) {
	sup := NewSupervisor(logger.Nop())

	id, err := sup.Launch(KindTopics, func(tok *clock.Token) syncer.Result {
		return syncer.Result{State: syncer.StateDone, Stats: syncer.Stats{New: 7}}
	})
	require.NoError(t, err)
	require.NoError(t, sup.Wait())

	info, ok := sup.Snapshot(id)
	require.True(t, ok)
	assert.Equal(t, StatusDone, info.Status)
	require.NotNil(t, info.Result)
	assert.Equal(t, 7, info.Result.Stats.New)
	assert.False(t, info.Ended.IsZero())
}

func TestFailedTaskSurfacesError(t *testing.T) {
	sup := NewSupervisor(logger.Nop())

	id, err := sup.Launch(KindTopics, func(tok *clock.Token) syncer.Result {
		return syncer.Result{State: syncer.StateFailed, Err: errors.New("boom")}
	})
	require.NoError(t, err)

	waitErr := sup.Wait()
	require.Error(t, waitErr)
	assert.Contains(t, waitErr.Error(), "boom")

	info, _ := sup.Snapshot(id)
	assert.Equal(t, StatusFailed, info.Status)
}

func TestSingleFlightPerKind(t *testing.T) {
	sup := NewSupervisor(logger.Nop())
	release := make(chan struct{})

	_, err := sup.Launch(KindTopics, func(tok *clock.Token) syncer.Result {
		<-release
		return syncer.Result{State: syncer.StateDone}
	})
	require.NoError(t, err)

	// A second topics task is refused while the first runs.
	_, err = sup.Launch(KindTopics, func(tok *clock.Token) syncer.Result {
		return syncer.Result{State: syncer.StateDone}
	})
	assert.Error(t, err)

	// A files task is a different kind and may run concurrently.
	_, err = sup.Launch(KindFiles, func(tok *clock.Token) syncer.Result {
		return syncer.Result{State: syncer.StateDone}
	})
	assert.NoError(t, err)

	close(release)
	require.NoError(t, sup.Wait())

	// With the first task finished, topics can be launched again.
	_, err = sup.Launch(KindTopics, func(tok *clock.Token) syncer.Result {
		return syncer.Result{State: syncer.StateDone}
	})
	assert.NoError(t, err)
	require.NoError(t, sup.Wait())
}

func TestStopSetsToken(t *testing.T) {
	sup := NewSupervisor(logger.Nop())
	var sawStop atomic.Bool

	id, err := sup.Launch(KindTopics, func(tok *clock.Token) syncer.Result {
		for !tok.Stopped() {
			time.Sleep(5 * time.Millisecond)
		}
		sawStop.Store(true)
		return syncer.Result{State: syncer.StateCancelled}
	})
	require.NoError(t, err)

	assert.True(t, sup.Stop(id))
	require.NoError(t, sup.Wait())
	assert.True(t, sawStop.Load())

	info, _ := sup.Snapshot(id)
	assert.Equal(t, StatusCancelled, info.Status)
}

func TestStopUnknownID(t *testing.T) {
	sup := NewSupervisor(logger.Nop())
	assert.False(t, sup.Stop("no-such-task"))
}

func TestStopAll(t *testing.T) {
	sup := NewSupervisor(logger.Nop())

	for _, kind := range []Kind{KindTopics, KindFiles} {
		_, err := sup.Launch(kind, func(tok *clock.Token) syncer.Result {
			<-tok.Done()
			return syncer.Result{State: syncer.StateCancelled}
		})
		require.NoError(t, err)
	}

	sup.StopAll()
	require.NoError(t, sup.Wait())

	for _, info := range sup.List() {
		assert.Equal(t, StatusCancelled, info.Status)
	}
}

func TestListNewestFirst(t *testing.T) {
	sup := NewSupervisor(logger.Nop())

	_, err := sup.Launch(KindTopics, func(tok *clock.Token) syncer.Result {
		return syncer.Result{State: syncer.StateDone}
	})
	require.NoError(t, err)
	require.NoError(t, sup.Wait())
	time.Sleep(5 * time.Millisecond)

	_, err = sup.Launch(KindFiles, func(tok *clock.Token) syncer.Result {
		return syncer.Result{State: syncer.StateDone}
	})
	require.NoError(t, err)
	require.NoError(t, sup.Wait())

	infos := sup.List()
	require.Len(t, infos, 2)
	assert.Equal(t, KindFiles, infos[0].Kind)
	assert.Equal(t, KindTopics, infos[1].Kind)
}
