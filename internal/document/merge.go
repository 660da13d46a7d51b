// Package document maintains experiment dashboard documents: their JSON
// snapshots, the merge applied by each update, and the live-typing side
// channel that announces every write.
package document

import (
	"bytes"
	"encoding/json"
	"maps"
	"strings"
)

// DefaultSteps is the step list a freshly created dashboard starts with.
var DefaultSteps = []string{
	"Identifying data sources",
	"Developing experiment",
	"Running experiment",
	"Creating parameterized model",
	"Generating UI",
	"Presenting report",
}

// Snapshot keys with a reserved meaning for the experiment kind.
const (
	KeyProgress    = "progress"
	KeyCurrentStep = "currentStep"
	KeySteps       = "steps"
	KeyResults     = "results"
	KeyChildren    = "children"
)

// NewSnapshot returns the initial content of an experiment document.
func NewSnapshot(steps []string) map[string]any {
	if len(steps) == 0 {
		steps = DefaultSteps
	}
	stepList := make([]any, len(steps))
	for i, s := range steps {
		stepList[i] = s
	}
	return map[string]any{
		KeyProgress:    0,
		KeyCurrentStep: 0,
		KeySteps:       stepList,
		KeyResults:     "",
		KeyChildren:    []any{},
	}
}

// Merge overlays fragment onto prev key by key: keys in fragment win, keys
// only in prev are kept. Neither input is modified. Nested objects are
// replaced whole, not merged.
func Merge(prev, fragment map[string]any) map[string]any {
	out := make(map[string]any, len(prev)+len(fragment))
	maps.Copy(out, prev)
	maps.Copy(out, fragment)
	return out
}

// ParseSnapshot decodes stored document content. Empty content is an empty
// snapshot. Content that is not a JSON object yields an empty snapshot and
// ok == false.
func ParseSnapshot(content string) (snapshot map[string]any, ok bool) {
	if strings.TrimSpace(content) == "" {
		return map[string]any{}, true
	}
	obj, ok := decodeObject(content)
	if !ok {
		return map[string]any{}, false
	}
	return obj, true
}

// ParseFragment decodes an update. Anything that is not a JSON object is
// carried verbatim as the results text.
func ParseFragment(raw string) map[string]any {
	if obj, ok := decodeObject(raw); ok {
		return obj
	}
	return map[string]any{KeyResults: raw}
}

// Encode renders a snapshot as stored document content.
func Encode(snapshot map[string]any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(snapshot); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// decodeObject keeps numbers as json.Number so stored values round-trip
// without float reformatting.
func decodeObject(s string) (map[string]any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return obj, true
}
