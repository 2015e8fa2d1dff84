package arm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/robosix/armlink/logger"
	"github.com/stretchr/testify/require"
)

func TestStateMachineTransitions(t *testing.T) {
	t.Run("startup order", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())
		require.Equal(t, Disconnected, sm.State())

		require.NoError(t, sm.ToProbing())
		require.Equal(t, Probing, sm.State())

		require.NoError(t, sm.ToHoming())
		require.Equal(t, Homing, sm.State())

		require.NoError(t, sm.ToReady())
		require.True(t, sm.State().IsReady())
	})

	t.Run("skipping a stage is rejected", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())

		require.ErrorIs(t, sm.ToHoming(), ErrInvalidTransition)
		require.ErrorIs(t, sm.ToReady(), ErrInvalidTransition)
		require.Equal(t, Disconnected, sm.State())
	})

	t.Run("no path back from ready", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())
		require.NoError(t, sm.ToProbing())
		require.NoError(t, sm.ToHoming())
		require.NoError(t, sm.ToReady())

		require.ErrorIs(t, sm.ToProbing(), ErrInvalidTransition)
		require.ErrorIs(t, sm.ToHoming(), ErrInvalidTransition)
	})

	t.Run("faulted is terminal", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())
		require.NoError(t, sm.ToProbing())

		sm.ToFaulted()
		require.True(t, sm.State().IsFaulted())

		require.ErrorIs(t, sm.ToProbing(), ErrInvalidTransition)
		require.ErrorIs(t, sm.ToHoming(), ErrInvalidTransition)
		require.ErrorIs(t, sm.ToReady(), ErrInvalidTransition)

		// repeated fault is a no-op
		sm.ToFaulted()
		require.True(t, sm.State().IsFaulted())
	})
}

func TestStateMachineHandlers(t *testing.T) {
	var mu sync.Mutex
	var transitions [][2]SessionState

	record := func(prev, next SessionState) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, [2]SessionState{prev, next})
	}

	sm := NewStateMachine(logger.GetLogger(), record)
	require.NoError(t, sm.ToProbing())
	sm.AddHandler(record)
	require.NoError(t, sm.ToHoming())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, [][2]SessionState{
		{Disconnected, Probing},
		{Probing, Homing},
		{Probing, Homing},
	}, transitions)
}

func TestStateMachineWaitState(t *testing.T) {
	t.Run("already satisfied", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())
		require.NoError(t, sm.WaitState(context.Background(), Disconnected))
	})

	t.Run("unblocks on transition", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())

		done := make(chan error, 1)
		go func() {
			done <- sm.WaitState(context.Background(), Probing)
		}()

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, sm.ToProbing())

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("WaitState did not unblock")
		}
	})

	t.Run("fault fails waiters", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())

		done := make(chan error, 1)
		go func() {
			done <- sm.WaitState(context.Background(), Ready)
		}()

		time.Sleep(10 * time.Millisecond)
		sm.ToFaulted()

		select {
		case err := <-done:
			require.ErrorIs(t, err, ErrSessionFaulted)
		case <-time.After(time.Second):
			t.Fatal("WaitState did not unblock on fault")
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		sm := NewStateMachine(logger.GetLogger())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- sm.WaitState(ctx, Ready)
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("WaitState did not observe cancellation")
		}
	})
}
