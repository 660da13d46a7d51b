package stream

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// DoneSentinel is the payload of the final frame.
const DoneSentinel = "[DONE]"

// EventKind tags an interpreted frame.
type EventKind int

const (
	// EventNoop is anything that should not change state.
	EventNoop EventKind = iota
	// EventProgress carries a progress percentage and step label.
	EventProgress
	// EventTerminal marks the end of the stream.
	EventTerminal
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventTerminal:
		return "terminal"
	default:
		return "noop"
	}
}

// Event is the interpretation of one frame. Progress and Step are only set
// for EventProgress.
type Event struct {
	Kind     EventKind
	Progress float64
	Step     string
}

// ParseErrorHook observes frames whose payload failed to decode.
type ParseErrorHook func(payload string, err error)

// Interpreter classifies frames. Decode failures are swallowed and reported
// through the logger, the frame counters and an optional hook.
type Interpreter struct {
	logger  *slog.Logger
	onError ParseErrorHook
}

// NewInterpreter creates an interpreter. A nil logger uses slog.Default().
func NewInterpreter(logger *slog.Logger, onError ParseErrorHook) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{logger: logger, onError: onError}
}

type progressPayload struct {
	Type     string          `json:"type"`
	Progress json.RawMessage `json:"progress"`
	Step     string          `json:"step"`
}

// Interpret classifies f. It never fails: anything it cannot use is EventNoop.
func (p *Interpreter) Interpret(f Frame) Event {
	payload, ok := dataPayload(f.Raw)
	if !ok {
		recordFrame(EventNoop)
		return Event{Kind: EventNoop}
	}

	if payload == DoneSentinel {
		recordFrame(EventTerminal)
		return Event{Kind: EventTerminal}
	}

	var msg progressPayload
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		p.reportParseError(payload, err)
		recordFrame(EventNoop)
		return Event{Kind: EventNoop}
	}

	if msg.Type != "progress" || len(msg.Progress) == 0 {
		recordFrame(EventNoop)
		return Event{Kind: EventNoop}
	}

	var pct float64
	if err := json.Unmarshal(msg.Progress, &pct); err != nil {
		// null or non-numeric progress is "not defined".
		recordFrame(EventNoop)
		return Event{Kind: EventNoop}
	}

	recordFrame(EventProgress)
	return Event{Kind: EventProgress, Progress: clampPercent(pct), Step: msg.Step}
}

func (p *Interpreter) reportParseError(payload string, err error) {
	frameParseErrors.Inc()
	preview := payload
	if len(preview) > 80 {
		preview = preview[:80]
	}
	p.logger.Warn("[STREAM] Dropping undecodable frame",
		"error", err,
		"payload_len", len(payload),
		"payload_preview", preview,
	)
	if p.onError != nil {
		p.onError(payload, err)
	}
}

// dataPayload joins the data fields of a frame. Comment, event and id lines
// are ignored. Multiple data lines are joined with "\n" as in the SSE format.
func dataPayload(raw string) (string, bool) {
	var parts []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		value := strings.TrimPrefix(line, "data:")
		value = strings.TrimPrefix(value, " ")
		parts = append(parts, value)
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), true
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
