package experiment

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/causal-labs/internal/stream"
	"github.com/google/uuid"
)

// Machine holds the lifecycle of one conversation's experiment.
//
// Exactly one run is live at a time. Each Start replaces the whole state and
// hands back a Run bound to that run's id, so a stale consumer can never
// write into a newer run.
type Machine struct {
	mu     sync.RWMutex
	state  State
	logger *slog.Logger
	now    func() time.Time

	subs    map[int]chan State
	nextSub int
}

// NewMachine returns an idle machine. A nil logger uses slog.Default().
func NewMachine(logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		state:  State{Phase: PhaseIdle},
		logger: logger,
		now:    time.Now,
		subs:   make(map[int]chan State),
	}
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Start begins a fresh run for the approved message.
// It fails with ErrRunInProgress while another run is live.
func (m *Machine) Start(chatID, messageID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase == PhaseRunning {
		return nil, ErrRunInProgress
	}

	started := m.now()
	m.state = State{
		Phase:       PhaseRunning,
		RunID:       uuid.NewString(),
		Progress:    0,
		CurrentStep: StartingStep,
		ChatID:      chatID,
		MessageID:   messageID,
		StartedAt:   &started,
	}
	runsStarted.Inc()
	m.logger.Info("[EXPERIMENT] Run started",
		"chat_id", chatID,
		"message_id", messageID,
		"run_id", m.state.RunID,
	)
	m.publishLocked()

	return &Run{m: m, id: m.state.RunID}, nil
}

// Reset returns the machine to idle, for navigation away from the chat.
// Callers cancel the live run's consumer first.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{Phase: PhaseIdle}
	m.publishLocked()
}

// Subscribe returns a channel that receives every state change, starting
// with the current state. Slow subscribers miss intermediate states rather
// than block the run, but the newest state is always delivered. The
// returned func unsubscribes and closes the channel.
func (m *Machine) Subscribe(buffer int) (<-chan State, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan State, buffer)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.state
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of attached subscribers.
func (m *Machine) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// publishLocked sends the current state to every subscriber. A full channel
// gives up its oldest entry so the latest state is never the one dropped.
// Only publishLocked sends, and it holds m.mu, so a freed slot stays free.
func (m *Machine) publishLocked() {
	for id, ch := range m.subs {
		select {
		case ch <- m.state:
			continue
		default:
		}

		select {
		case <-ch:
			m.logger.Debug("[EXPERIMENT] Subscriber lagging, stale state dropped", "subscriber", id)
		default:
		}
		select {
		case ch <- m.state:
		default:
			m.logger.Warn("[EXPERIMENT] Subscriber channel stuck, state dropped", "subscriber", id)
		}
	}
}

// Run is the handle of one started run.
type Run struct {
	m  *Machine
	id string
}

// ID returns the run id.
func (r *Run) ID() string {
	return r.id
}

// State returns the machine state.
func (r *Run) State() State {
	return r.m.State()
}

// Active reports whether this run is still the machine's live run.
func (r *Run) Active() bool {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return r.activeLocked()
}

func (r *Run) activeLocked() bool {
	return r.m.state.RunID == r.id && r.m.state.Phase == PhaseRunning
}

// Apply folds ev into the run and reports whether consumption should stop,
// either because the terminal event arrived or because the run is no longer
// live.
func (r *Run) Apply(ev stream.Event) (stop bool) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if !r.activeLocked() {
		return true
	}

	switch ev.Kind {
	case stream.EventProgress:
		if ev.Progress < m.state.Progress {
			progressRegressions.Inc()
			m.logger.Warn("[EXPERIMENT] Progress moved backwards",
				"run_id", r.id,
				"from", m.state.Progress,
				"to", ev.Progress,
				"step", ev.Step,
			)
		}
		m.state.Progress = ev.Progress
		m.state.CurrentStep = ev.Step
		m.publishLocked()
		return false

	case stream.EventTerminal:
		r.finishLocked(PhaseCompleted, "")
		m.state.ResultsPath = ResultsPath(m.state.ChatID)
		m.publishLocked()
		return true

	default:
		return false
	}
}

// Abort ends the run with a human-readable reason. It is a no-op once the
// run is over.
func (r *Run) Abort(reason string) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if !r.activeLocked() {
		return
	}
	r.finishLocked(PhaseAborted, reason)
	m.publishLocked()
}

// Cancel aborts the run on behalf of its owner.
func (r *Run) Cancel() {
	r.Abort(ErrCancelled.Error())
}

func (r *Run) finishLocked(phase Phase, reason string) {
	m := r.m
	finished := m.now()
	m.state.Phase = phase
	m.state.FinishedAt = &finished
	if reason != "" {
		m.state.Error = &reason
	}
	runsFinished.WithLabelValues(string(phase)).Inc()
	m.logger.Info("[EXPERIMENT] Run finished",
		"chat_id", m.state.ChatID,
		"run_id", r.id,
		"phase", phase,
		"progress", m.state.Progress,
		"error", reason,
	)
}
