package experiment

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/causal-labs/internal/stream"
)

func progress(p float64, step string) stream.Event {
	return stream.Event{Kind: stream.EventProgress, Progress: p, Step: step}
}

var terminal = stream.Event{Kind: stream.EventTerminal}

func TestMachine_StartsIdle(t *testing.T) {
	m := NewMachine(nil)
	st := m.State()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Nil(t, st.Error)
	assert.Empty(t, st.RunID)
}

func TestMachine_StartResetsState(t *testing.T) {
	m := NewMachine(nil)

	run, err := m.Start("chat-1", "msg-1")
	require.NoError(t, err)

	st := m.State()
	assert.Equal(t, PhaseRunning, st.Phase)
	assert.Equal(t, run.ID(), st.RunID)
	assert.Equal(t, float64(0), st.Progress)
	assert.Equal(t, StartingStep, st.CurrentStep)
	assert.Equal(t, "chat-1", st.ChatID)
	assert.Equal(t, "msg-1", st.MessageID)
	assert.NotNil(t, st.StartedAt)
	assert.Nil(t, st.Error)
	assert.Empty(t, st.ResultsPath)
}

func TestMachine_RejectsConcurrentStart(t *testing.T) {
	m := NewMachine(nil)
	first, err := m.Start("chat-1", "msg-1")
	require.NoError(t, err)

	_, err = m.Start("chat-1", "msg-2")
	require.ErrorIs(t, err, ErrRunInProgress)
	assert.Equal(t, first.ID(), m.State().RunID)
	assert.Equal(t, "msg-1", m.State().MessageID)
}

func TestMachine_RestartAfterTerminal(t *testing.T) {
	m := NewMachine(nil)
	first, err := m.Start("chat-1", "msg-1")
	require.NoError(t, err)
	first.Apply(progress(40, "Modeling"))
	first.Abort("boom")

	second, err := m.Start("chat-1", "msg-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())

	st := m.State()
	assert.Equal(t, PhaseRunning, st.Phase)
	assert.Equal(t, float64(0), st.Progress)
	assert.Nil(t, st.Error, "a new run must clear the previous error")
	assert.Nil(t, st.FinishedAt)
}

func TestRun_ApplyProgressAndTerminal(t *testing.T) {
	m := NewMachine(nil)
	run, err := m.Start("chat-9", "msg-1")
	require.NoError(t, err)

	assert.False(t, run.Apply(progress(10, "Starting")))
	assert.False(t, run.Apply(stream.Event{Kind: stream.EventNoop}))
	assert.False(t, run.Apply(progress(55, "Modeling")))
	assert.True(t, run.Apply(terminal))

	st := m.State()
	assert.Equal(t, PhaseCompleted, st.Phase)
	assert.Equal(t, float64(55), st.Progress)
	assert.Equal(t, "Modeling", st.CurrentStep)
	assert.Equal(t, "/results/chat-9", st.ResultsPath)
	assert.NotNil(t, st.FinishedAt)
	assert.Nil(t, st.Error)
}

func TestRun_ProgressRegressionIsApplied(t *testing.T) {
	m := NewMachine(nil)
	run, err := m.Start("chat-1", "msg-1")
	require.NoError(t, err)

	before := testutil.ToFloat64(progressRegressions)
	run.Apply(progress(70, "Fitting"))
	run.Apply(progress(30, "Refitting"))

	assert.Equal(t, float64(30), m.State().Progress)
	assert.Equal(t, "Refitting", m.State().CurrentStep)
	assert.Equal(t, before+1, testutil.ToFloat64(progressRegressions))
}

func TestRun_TerminalStateIsFinal(t *testing.T) {
	m := NewMachine(nil)
	run, err := m.Start("chat-1", "msg-1")
	require.NoError(t, err)
	run.Apply(progress(20, "Loading"))
	run.Abort("backend exploded")

	assert.True(t, run.Apply(progress(90, "Late")))
	assert.True(t, run.Apply(terminal))
	run.Abort("second reason")

	st := m.State()
	assert.Equal(t, PhaseAborted, st.Phase)
	assert.Equal(t, float64(20), st.Progress)
	require.NotNil(t, st.Error)
	assert.Equal(t, "backend exploded", *st.Error)
	assert.Empty(t, st.ResultsPath)
}

func TestRun_StaleHandleCannotTouchNewRun(t *testing.T) {
	m := NewMachine(nil)
	stale, err := m.Start("chat-1", "msg-1")
	require.NoError(t, err)
	stale.Cancel()

	fresh, err := m.Start("chat-1", "msg-2")
	require.NoError(t, err)

	assert.False(t, stale.Active())
	assert.True(t, stale.Apply(progress(99, "Stale")))
	stale.Abort("stale abort")

	st := m.State()
	assert.Equal(t, fresh.ID(), st.RunID)
	assert.Equal(t, PhaseRunning, st.Phase)
	assert.Equal(t, float64(0), st.Progress)
	assert.Nil(t, st.Error)
}

func TestRun_CancelSetsCancelledError(t *testing.T) {
	m := NewMachine(nil)
	run, err := m.Start("chat-1", "msg-1")
	require.NoError(t, err)
	run.Cancel()

	st := m.State()
	assert.Equal(t, PhaseAborted, st.Phase)
	require.NotNil(t, st.Error)
	assert.Equal(t, "experiment cancelled", *st.Error)
}

func TestMachine_Reset(t *testing.T) {
	m := NewMachine(nil)
	run, err := m.Start("chat-1", "msg-1")
	require.NoError(t, err)
	run.Apply(progress(50, "Half"))

	m.Reset()
	assert.Equal(t, State{Phase: PhaseIdle}, m.State())
	assert.True(t, run.Apply(progress(60, "After reset")))
}

func TestMachine_Subscribe(t *testing.T) {
	m := NewMachine(nil)
	ch, unsubscribe := m.Subscribe(8)

	initial := <-ch
	assert.Equal(t, PhaseIdle, initial.Phase)

	run, err := m.Start("chat-1", "msg-1")
	require.NoError(t, err)
	run.Apply(progress(25, "Quarter"))
	run.Apply(terminal)

	phases := []Phase{(<-ch).Phase, (<-ch).Phase, (<-ch).Phase}
	assert.Equal(t, []Phase{PhaseRunning, PhaseRunning, PhaseCompleted}, phases)

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestMachine_SlowSubscriberDoesNotBlock(t *testing.T) {
	m := NewMachine(nil)
	_, unsubscribe := m.Subscribe(1)
	defer unsubscribe()

	run, err := m.Start("chat-1", "msg-1")
	require.NoError(t, err)
	for i := 1; i <= 50; i++ {
		run.Apply(progress(float64(i), "step"))
	}
	assert.Equal(t, float64(50), m.State().Progress)
}

func TestMachine_SlowSubscriberReceivesLatestState(t *testing.T) {
	for _, buffer := range []int{1, 4} {
		m := NewMachine(nil)
		states, unsubscribe := m.Subscribe(buffer)

		run, err := m.Start("chat-1", "msg-1")
		require.NoError(t, err)
		for i := 1; i <= 10; i++ {
			run.Apply(progress(float64(i), "step"))
		}
		require.True(t, run.Apply(terminal))
		unsubscribe()

		var last State
		received := 0
		for st := range states {
			last = st
			received++
		}
		assert.LessOrEqual(t, received, buffer, "buffer %d", buffer)
		assert.Equal(t, PhaseCompleted, last.Phase, "buffer %d", buffer)
		assert.Equal(t, float64(10), last.Progress, "buffer %d", buffer)
	}
}

func TestMachine_SubscriberCount(t *testing.T) {
	m := NewMachine(nil)
	assert.Zero(t, m.Subscribers())

	_, first := m.Subscribe(1)
	_, second := m.Subscribe(1)
	assert.Equal(t, 2, m.Subscribers())

	first()
	first()
	assert.Equal(t, 1, m.Subscribers())
	second()
	assert.Zero(t, m.Subscribers())
}

func TestMachine_ConcurrentReaders(t *testing.T) {
	m := NewMachine(nil)
	run, err := m.Start("chat-1", "msg-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				st := m.State()
				if st.Progress < 0 || st.Progress > 100 {
					t.Errorf("progress out of range: %v", st.Progress)
					return
				}
			}
		}()
	}
	for i := 0; i <= 100; i++ {
		run.Apply(progress(float64(i), "step"))
	}
	wg.Wait()
}

func TestPhase_Terminal(t *testing.T) {
	tests := []struct {
		phase Phase
		want  bool
	}{
		{PhaseIdle, false},
		{PhaseRunning, false},
		{PhaseCompleted, true},
		{PhaseAborted, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.phase.Terminal())
		})
	}
}
