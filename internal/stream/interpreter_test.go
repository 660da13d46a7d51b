package stream

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Event
	}{
		{
			name: "progress frame",
			raw:  `data: {"type":"progress","progress":10,"step":"Starting"}`,
			want: Event{Kind: EventProgress, Progress: 10, Step: "Starting"},
		},
		{
			name: "progress without space after field",
			raw:  `data:{"type":"progress","progress":42.5,"step":"Fitting"}`,
			want: Event{Kind: EventProgress, Progress: 42.5, Step: "Fitting"},
		},
		{
			name: "terminal sentinel",
			raw:  "data: [DONE]",
			want: Event{Kind: EventTerminal},
		},
		{
			name: "terminal sentinel with padding",
			raw:  "data:   [DONE]  ",
			want: Event{Kind: EventTerminal},
		},
		{
			name: "event and id lines are ignored",
			raw:  "id: 4\nevent: message\ndata: {\"type\":\"progress\",\"progress\":70,\"step\":\"Report\"}",
			want: Event{Kind: EventProgress, Progress: 70, Step: "Report"},
		},
		{
			name: "progress is clamped",
			raw:  `data: {"type":"progress","progress":140,"step":"Over"}`,
			want: Event{Kind: EventProgress, Progress: 100, Step: "Over"},
		},
		{
			name: "zero progress is defined",
			raw:  `data: {"type":"progress","progress":0,"step":"Queued"}`,
			want: Event{Kind: EventProgress, Progress: 0, Step: "Queued"},
		},
		{
			name: "missing progress",
			raw:  `data: {"type":"progress","step":"Starting"}`,
			want: Event{Kind: EventNoop},
		},
		{
			name: "null progress",
			raw:  `data: {"type":"progress","progress":null}`,
			want: Event{Kind: EventNoop},
		},
		{
			name: "string progress",
			raw:  `data: {"type":"progress","progress":"10"}`,
			want: Event{Kind: EventNoop},
		},
		{
			name: "other type",
			raw:  `data: {"type":"log","message":"hello"}`,
			want: Event{Kind: EventNoop},
		},
		{
			name: "json array payload",
			raw:  `data: [1,2,3]`,
			want: Event{Kind: EventNoop},
		},
		{
			name: "comment only",
			raw:  ": keepalive",
			want: Event{Kind: EventNoop},
		},
		{
			name: "empty frame",
			raw:  "",
			want: Event{Kind: EventNoop},
		},
	}

	p := NewInterpreter(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Interpret(Frame{Raw: tt.raw}))
		})
	}
}

func TestInterpretSwallowsMalformedJSON(t *testing.T) {
	var hooked []string
	p := NewInterpreter(nil, func(payload string, err error) {
		assert.Error(t, err)
		hooked = append(hooked, payload)
	})
	before := testutil.ToFloat64(frameParseErrors)

	got := p.Interpret(Frame{Raw: `data: {"type":"progress","progress":1`})

	assert.Equal(t, Event{Kind: EventNoop}, got)
	assert.Equal(t, []string{`{"type":"progress","progress":1`}, hooked)
	assert.Equal(t, before+1, testutil.ToFloat64(frameParseErrors))
}

func TestInterpretNeverPanics(t *testing.T) {
	p := NewInterpreter(nil, nil)
	inputs := []string{
		"",
		"data:",
		"data: ",
		"data: {",
		"data: \x00\xff\xfe",
		"\xff\xfe\xfd",
		"data: {\"type\":\"progress\",\"progress\":1e999}",
		"data: {\"type\":\"progress\",\"progress\":[1]}",
		"data: \"[DONE]\"",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { p.Interpret(Frame{Raw: in}) }, "input %q", in)
	}
}

func FuzzInterpret(f *testing.F) {
	f.Add(`data: {"type":"progress","progress":10,"step":"Starting"}`)
	f.Add("data: [DONE]")
	f.Add("data: {")
	p := NewInterpreter(nil, nil)
	f.Fuzz(func(t *testing.T, raw string) {
		ev := p.Interpret(Frame{Raw: raw})
		if ev.Kind == EventProgress && (ev.Progress < 0 || ev.Progress > 100) {
			t.Fatalf("progress out of range: %v", ev.Progress)
		}
	})
}
