// Package domain contains the records shared between the HTTP layer, the
// experiment runtime and persistence.
package domain

// ChatMessage is one prior turn forwarded to the analysis backend as context.
type ChatMessage struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content"`
}
