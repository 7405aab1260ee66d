package prompt

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// DefaultMaxChars is the character budget of a flattened prompt
	DefaultMaxChars = 8000

	// TruncationMarker is prepended when older context was cut
	TruncationMarker = "...\n\n"

	humanPrefix     = "Human: "
	assistantPrefix = "Assistant: "
	assistantCue    = "Assistant:"
	separator       = "\n\n"
)

// UnknownRoleError is returned in strict mode for a turn whose role is
// neither user nor assistant.
type UnknownRoleError struct {
	Index int
	Role  Role
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("history turn %d has unknown role %q", e.Index, e.Role)
}

// Flattener builds one linear prompt out of a chat history.
//
// MaxChars <= 0 disables truncation. With Strict unset, turns with an
// unknown role are skipped.
type Flattener struct {
	MaxChars int
	Strict   bool
}

// Flatten is the lenient form of Flattener.Flatten
func Flatten(currentPrompt string, history []Turn, maxChars int) string {
	// A lenient flattener never fails
	out, _ := Flattener{MaxChars: maxChars}.Flatten(currentPrompt, history)
	return out
}

// Flatten renders history plus the current prompt as "Human:"/"Assistant:"
// blocks ending with an empty assistant cue. Without history the prompt is
// returned as is.
func (f Flattener) Flatten(currentPrompt string, history []Turn) (string, error) {
	if len(history) == 0 {
		return currentPrompt, nil
	}

	parts := make([]string, 0, len(history)+2)
	for i, turn := range history {
		switch turn.Role {
		case RoleUser:
			if line, ok := userLine(turn); ok {
				parts = append(parts, line)
			}
		case RoleAssistant:
			parts = append(parts, assistantPrefix+StripMetrics(turn.Text()))
		default:
			if f.Strict {
				return "", &UnknownRoleError{Index: i, Role: turn.Role}
			}
		}
	}

	parts = append(parts, humanPrefix+currentPrompt, assistantCue)

	return Truncate(strings.Join(parts, separator), f.MaxChars), nil
}

func userLine(turn Turn) (string, bool) {
	switch c := turn.Content.(type) {
	case TextContent:
		return humanPrefix + string(c), true
	case MultimodalContent:
		// an attachment-only upload carries no text worth replaying
		if c.Text == "" {
			return "", false
		}
		return humanPrefix + c.Text, true
	default:
		return "", false
	}
}

// StripMetrics drops the metrics section of a rendered reply together with
// the whitespace preceding it. Text without the marker is returned unchanged.
func StripMetrics(text string) string {
	idx := strings.Index(text, MetricsMarker)
	if idx == -1 {
		return text
	}
	return strings.TrimRightFunc(text[:idx], unicode.IsSpace)
}

// Truncate keeps the last maxChars characters of s and prefixes them with
// TruncationMarker. The cut counts runes and ignores word and line boundaries.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}

	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}

	return TruncationMarker + string(runes[len(runes)-maxChars:])
}
