package experiment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/causal-labs/internal/domain"
)

// RunRecorder archives finished runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, rec *domain.RunRecord) error
}

type session struct {
	machine   *Machine
	run       *Run
	cancel    context.CancelFunc
	done      chan struct{}
	updatedAt time.Time
}

// Sessions keeps one experiment machine per chat and drives approved runs
// against the backend.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*session

	backend  Backend
	runner   *Runner
	recorder RunRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewSessions creates a registry. recorder may be nil.
func NewSessions(backend Backend, runner *Runner, recorder RunRecorder, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		sessions: make(map[string]*session),
		backend:  backend,
		runner:   runner,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Machine returns the chat's machine, creating an idle one if needed.
func (s *Sessions) Machine(chatID string) *Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(chatID).machine
}

// Lookup returns the chat's machine if the chat has a session.
func (s *Sessions) Lookup(chatID string) (*Machine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chatID]
	if !ok {
		return nil, false
	}
	return sess.machine, true
}

func (s *Sessions) ensureLocked(chatID string) *session {
	sess, ok := s.sessions[chatID]
	if !ok {
		sess = &session{
			machine:   NewMachine(s.logger.With("chat_id", chatID)),
			updatedAt: s.now(),
		}
		s.sessions[chatID] = sess
	}
	return sess
}

// Approve starts a run for req and consumes the backend stream in the
// background. The run outlives ctx; use Cancel to stop it.
func (s *Sessions) Approve(ctx context.Context, req RunRequest) (State, error) {
	s.mu.Lock()
	sess := s.ensureLocked(req.ChatID)
	run, err := sess.machine.Start(req.ChatID, req.MessageID)
	if err != nil {
		s.mu.Unlock()
		return sess.machine.State(), err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	sess.run = run
	sess.cancel = cancel
	sess.done = done
	sess.updatedAt = s.now()
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		s.drive(runCtx, run, req)
	}()

	return run.State(), nil
}

func (s *Sessions) drive(ctx context.Context, run *Run, req RunRequest) {
	body, err := s.backend.RunExperiment(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			run.Cancel()
		} else {
			run.Abort(err.Error())
		}
		s.logger.Warn("[EXPERIMENT] Backend call failed", "chat_id", req.ChatID, "run_id", run.ID(), "error", err)
		s.record(run)
		return
	}

	if err := s.runner.Consume(ctx, run, body); err != nil && !errors.Is(err, ErrCancelled) {
		s.logger.Warn("[EXPERIMENT] Run stream failed", "chat_id", req.ChatID, "run_id", run.ID(), "error", err)
	}
	s.record(run)
}

func (s *Sessions) record(run *Run) {
	s.touch(run.State().ChatID)
	if s.recorder == nil {
		return
	}
	state := run.State()
	if state.RunID != run.ID() {
		return
	}
	rec := &domain.RunRecord{
		RunID:       state.RunID,
		ChatID:      state.ChatID,
		MessageID:   state.MessageID,
		Phase:       string(state.Phase),
		Progress:    state.Progress,
		CurrentStep: state.CurrentStep,
		FinishedAt:  state.FinishedAt,
	}
	if state.StartedAt != nil {
		rec.StartedAt = *state.StartedAt
	}
	if state.Error != nil {
		rec.Error = *state.Error
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.recorder.RecordRun(ctx, rec); err != nil {
		s.logger.Error("[EXPERIMENT] Failed to record run", "run_id", rec.RunID, "error", err)
	}
}

func (s *Sessions) touch(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[chatID]; ok {
		sess.updatedAt = s.now()
	}
}

// Cancel stops the chat's live run. The state becomes aborted immediately;
// the background consumer releases the stream when it observes the
// cancellation.
func (s *Sessions) Cancel(chatID string) (State, error) {
	s.mu.Lock()
	sess, ok := s.sessions[chatID]
	if !ok {
		s.mu.Unlock()
		return State{Phase: PhaseIdle}, ErrNoSession
	}
	run, cancel := sess.run, sess.cancel
	sess.updatedAt = s.now()
	s.mu.Unlock()

	if run != nil {
		run.Cancel()
	}
	if cancel != nil {
		cancel()
	}
	return sess.machine.State(), nil
}

// Reset cancels any live run and returns the chat to idle.
func (s *Sessions) Reset(chatID string) {
	s.mu.Lock()
	sess, ok := s.sessions[chatID]
	if !ok {
		s.mu.Unlock()
		return
	}
	run, cancel := sess.run, sess.cancel
	sess.run, sess.cancel = nil, nil
	s.mu.Unlock()

	if run != nil {
		run.Cancel()
	}
	if cancel != nil {
		cancel()
	}
	sess.machine.Reset()
}

// Wait blocks until the chat's current background run has released its
// stream, or ctx ends.
func (s *Sessions) Wait(ctx context.Context, chatID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[chatID]
	var done chan struct{}
	if ok {
		done = sess.done
	}
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reap removes sessions that are not running, have no live state feeds
// attached, and have not changed for ttl. It returns how many were removed.
func (s *Sessions) Reap(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-ttl)
	removed := 0
	for chatID, sess := range s.sessions {
		if sess.machine.State().Phase == PhaseRunning {
			continue
		}
		// A reaped machine would strand its subscribers on an orphan.
		if sess.machine.Subscribers() > 0 {
			continue
		}
		if sess.updatedAt.After(cutoff) {
			continue
		}
		delete(s.sessions, chatID)
		removed++
	}
	return removed
}

// Len returns the number of tracked chats.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown cancels every live run.
func (s *Sessions) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.run != nil {
			sess.run.Cancel()
		}
		if sess.cancel != nil {
			sess.cancel()
		}
	}
}
