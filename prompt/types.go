// Package prompt turns a structured chat history into the single prompt string
// sent to generate-style completion endpoints.
package prompt

// Role represents the speaker of a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MetricsMarker separates a rendered reply from the performance metrics
// appended below it. Everything from the marker onward is dropped when the
// reply is replayed as context.
const MetricsMarker = "📊 **Performance Metrics:**"

// Content is the body of a turn. It is either TextContent or MultimodalContent.
type Content interface {
	// ContentKind returns "text" or "multimodal"
	ContentKind() string
}

// TextContent is a plain text turn body
type TextContent string

func (TextContent) ContentKind() string { return "text" }

// MultimodalContent is text sent together with attachments (images).
// Attachments are opaque references and are never embedded in the prompt.
type MultimodalContent struct {
	Text        string
	Attachments []string
}

func (MultimodalContent) ContentKind() string { return "multimodal" }

// Turn is one message in a conversation
type Turn struct {
	Role    Role
	Content Content
}

// UserText builds a plain user turn
func UserText(text string) Turn {
	return Turn{Role: RoleUser, Content: TextContent(text)}
}

// UserWithAttachments builds a user turn carrying attachments
func UserWithAttachments(text string, attachments ...string) Turn {
	return Turn{Role: RoleUser, Content: MultimodalContent{Text: text, Attachments: attachments}}
}

// AssistantText builds an assistant turn
func AssistantText(text string) Turn {
	return Turn{Role: RoleAssistant, Content: TextContent(text)}
}

// Text returns the textual part of the turn's content
func (t Turn) Text() string {
	switch c := t.Content.(type) {
	case TextContent:
		return string(c)
	case MultimodalContent:
		return c.Text
	default:
		return ""
	}
}

// Attachments returns the attachments of a multimodal turn
func (t Turn) Attachments() []string {
	if c, ok := t.Content.(MultimodalContent); ok {
		return c.Attachments
	}
	return nil
}
