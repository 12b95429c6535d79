package messenger

import "context"

// MessageID uniquely identifies a message within a messenger platform.
type MessageID string

// Field is one labelled value in a Report.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Report is a structured operational message: a title, an outcome, labelled
// fields and free-form detail lines.
type Report struct {
	Title   string   `json:"title"`
	Success bool     `json:"success"`
	Fields  []Field  `json:"fields,omitempty"`
	Details []string `json:"details,omitempty"`
}

// Messenger abstracts posting to a chat platform (Slack today).
// Implementations handle platform-specific API calls; the interface is platform-agnostic.
type Messenger interface {
	// SendMessage posts a text message to a channel and returns its platform message ID.
	SendMessage(ctx context.Context, channelID, text string) (MessageID, error)

	// SendReport posts a Report using the platform's rich formatting.
	SendReport(ctx context.Context, channelID string, report Report) (MessageID, error)

	// Platform returns the messenger platform identifier (e.g. "slack").
	Platform() string
}
