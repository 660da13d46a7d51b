package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ashureev/causal-labs/internal/stream"
)

const defaultReadBufferSize = 4096

// Navigator is told when a run completes so the caller can move to the
// results view.
type Navigator func(ctx context.Context, state State)

// Runner consumes a backend event stream into a Run.
type Runner struct {
	interp   *stream.Interpreter
	bufSize  int
	navigate Navigator
	logger   *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithReadBufferSize sets how many bytes each transport read asks for.
func WithReadBufferSize(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.bufSize = n
		}
	}
}

// WithNavigator sets the completion callback.
func WithNavigator(nav Navigator) RunnerOption {
	return func(r *Runner) { r.navigate = nav }
}

// WithInterpreter replaces the default frame interpreter.
func WithInterpreter(p *stream.Interpreter) RunnerOption {
	return func(r *Runner) {
		if p != nil {
			r.interp = p
		}
	}
}

// NewRunner creates a runner. A nil logger uses slog.Default().
func NewRunner(logger *slog.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		bufSize: defaultReadBufferSize,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.interp == nil {
		r.interp = stream.NewInterpreter(logger, nil)
	}
	return r
}

// Consume reads body until the terminal frame, a transport failure, or
// cancellation of ctx, and always closes body.
//
// Frames are folded strictly in arrival order. Anything after the terminal
// frame is never interpreted. Cancellation is checked before every read and
// aborts the run without completing it.
func (r *Runner) Consume(ctx context.Context, run *Run, body io.ReadCloser) (err error) {
	defer func() {
		if closeErr := body.Close(); closeErr != nil {
			r.logger.Debug("[EXPERIMENT] Failed to close stream body", "run_id", run.ID(), "error", closeErr)
		}
	}()

	reassembler := stream.NewReassembler()
	buf := make([]byte, r.bufSize)

	for {
		if ctx.Err() != nil {
			run.Cancel()
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		if !run.Active() {
			return ErrCancelled
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			for frame := range reassembler.FeedBytes(buf[:n]) {
				if run.Apply(r.interp.Interpret(frame)) {
					return r.finish(ctx, run)
				}
			}
		}

		if readErr == nil {
			continue
		}
		if ctx.Err() != nil {
			run.Cancel()
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		if errors.Is(readErr, io.EOF) {
			if pending := reassembler.Pending(); pending > 0 {
				r.logger.Warn("[EXPERIMENT] Stream closed mid-frame", "run_id", run.ID(), "pending_bytes", pending)
			}
			run.Abort(ErrStreamEnded.Error())
			return ErrStreamEnded
		}
		terr := &TransportError{Err: readErr}
		run.Abort(terr.Error())
		return terr
	}
}

// finish runs after Apply asked to stop: either the run completed or
// someone else ended it.
func (r *Runner) finish(ctx context.Context, run *Run) error {
	state := run.State()
	if state.RunID != run.ID() || state.Phase != PhaseCompleted {
		return ErrCancelled
	}
	if r.navigate != nil {
		r.navigate(ctx, state)
	}
	return nil
}
