// Package directive extracts the "run this analysis" card that the assistant
// embeds in generated text.
//
// The card grammar is a loose tag markup, not XML:
//
//	<ui.card>
//	  <ui.title>...</ui.title>
//	  <ui.description>...</ui.description>
//	  <ui.datasources>
//	    <ui.chip category="..." title="...">relevance</ui.chip>
//	  </ui.datasources>
//	  <ui.button variant='...' size='...'>LABEL</ui.button>
//	</ui.card>
//
// Content is unescaped and every inner element is optional.
package directive

import (
	"regexp"
	"strings"
)

// Chip is one datasource badge shown on the approval card.
type Chip struct {
	Category  string `json:"category"`
	Title     string `json:"title"`
	Relevance string `json:"relevance"`
}

// Action is the approval button.
type Action struct {
	Label string `json:"label"`
	Style string `json:"style"`
	Size  string `json:"size,omitempty"`
}

// Directive is the structured instruction parsed out of one card block.
type Directive struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	DatasourceChips []Chip `json:"datasourceChips"`
	Action          Action `json:"action"`
}

// Result is the output of Extract. Directive is nil when the text holds no card.
type Result struct {
	Prose     string     `json:"prose"`
	Directive *Directive `json:"directive"`
}

// All patterns are non-greedy with (?s) so content may span lines.
var (
	cardRegex        = regexp.MustCompile(`(?s)<ui\.card>(.*?)</ui\.card>`)
	titleRegex       = regexp.MustCompile(`(?s)<ui\.title>(.*?)</ui\.title>`)
	descriptionRegex = regexp.MustCompile(`(?s)<ui\.description>(.*?)</ui\.description>`)
	datasourcesRegex = regexp.MustCompile(`(?s)<ui\.datasources>(.*?)</ui\.datasources>`)
	chipRegex        = regexp.MustCompile(`(?s)<ui\.chip\s+category="([^"]*)"\s+title="([^"]*)"\s*>(.*?)</ui\.chip>`)
	buttonRegex      = regexp.MustCompile(`(?s)<ui\.button((?:\s+\w+=(?:'[^']*'|"[^"]*"))*)\s*>(.*?)</ui\.button>`)
	buttonAttrRegex  = regexp.MustCompile(`(\w+)=(?:'([^']*)'|"([^"]*)")`)
)

// Extract splits text into residual prose and at most one directive.
//
// Only the first card is honored. Its exact byte span is removed and
// everything outside it is returned untouched, including a second card.
// Malformed cards never fail; missing parts come back as empty strings.
func Extract(text string) Result {
	loc := cardRegex.FindStringSubmatchIndex(text)
	if loc == nil {
		return Result{Prose: text}
	}

	body := text[loc[2]:loc[3]]
	d := &Directive{
		Title:           strings.TrimSpace(inner(titleRegex, body)),
		Description:     strings.TrimSpace(inner(descriptionRegex, body)),
		DatasourceChips: parseChips(inner(datasourcesRegex, body)),
		Action:          parseAction(body),
	}

	return Result{
		Prose:     text[:loc[0]] + text[loc[1]:],
		Directive: d,
	}
}

// inner returns the first capture group of re in s, or "".
func inner(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

func parseChips(datasources string) []Chip {
	matches := chipRegex.FindAllStringSubmatch(datasources, -1)
	chips := make([]Chip, 0, len(matches))
	for _, m := range matches {
		chips = append(chips, Chip{
			Category:  m[1],
			Title:     m[2],
			Relevance: strings.TrimSpace(m[3]),
		})
	}
	return chips
}

func parseAction(body string) Action {
	m := buttonRegex.FindStringSubmatch(body)
	if m == nil {
		return Action{}
	}

	action := Action{Label: strings.TrimSpace(m[2])}
	for _, attr := range buttonAttrRegex.FindAllStringSubmatch(m[1], -1) {
		// Only one quote style matches, the other group stays empty.
		value := attr[2] + attr[3]
		switch attr[1] {
		case "variant":
			action.Style = value
		case "size":
			action.Size = value
		}
	}
	return action
}

// Format renders d back into card markup. Extract(Format(d)) yields d again
// for fields that are already trimmed and free of the card's own markers.
func Format(d Directive) string {
	var b strings.Builder
	b.WriteString("<ui.card>\n")
	b.WriteString("<ui.title>" + d.Title + "</ui.title>\n")
	b.WriteString("<ui.description>" + d.Description + "</ui.description>\n")
	b.WriteString("<ui.datasources>\n")
	for _, c := range d.DatasourceChips {
		b.WriteString(`<ui.chip category="` + c.Category + `" title="` + c.Title + `">`)
		b.WriteString(c.Relevance)
		b.WriteString("</ui.chip>\n")
	}
	b.WriteString("</ui.datasources>\n")

	b.WriteString("<ui.button")
	if d.Action.Style != "" {
		b.WriteString(" variant='" + d.Action.Style + "'")
	}
	if d.Action.Size != "" {
		b.WriteString(" size='" + d.Action.Size + "'")
	}
	b.WriteString(">" + d.Action.Label + "</ui.button>\n")
	b.WriteString("</ui.card>")
	return b.String()
}
