package transcriber

import (
	"encoding/json"
	"strings"
)

// EventKind tags one decoded streaming event. Both transports speak
// JSON events that reduce to this union.
type EventKind int

const (
	EventIgnore EventKind = iota
	EventDelta
	EventDone
	EventError
)

type Event struct {
	Kind EventKind
	Text string // delta fragment, final text, or error message
}

// ParseEvent classifies a single JSON event. An explicit type/event
// field is authoritative; an error key at the top level takes
// precedence; otherwise presence of delta/text/transcript keys is
// sniffed one level deep as a best-effort compatibility path.
func ParseEvent(data []byte) Event {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return Event{Kind: EventIgnore}
	}
	return classifyEvent(obj)
}

func classifyEvent(obj map[string]any) Event {
	if msg, ok := errorMessage(obj); ok {
		return Event{Kind: EventError, Text: msg}
	}

	typ := stringField(obj, "type")
	if typ == "" {
		typ = stringField(obj, "event")
	}
	if typ != "" {
		switch {
		case strings.Contains(typ, "error"):
			return Event{Kind: EventError, Text: firstTextKey(obj)}
		case strings.Contains(typ, "delta"):
			return Event{Kind: EventDelta, Text: firstTextKey(obj)}
		case strings.Contains(typ, "done"), strings.Contains(typ, "completed"):
			return Event{Kind: EventDone, Text: firstTextKey(obj)}
		default:
			return Event{Kind: EventIgnore}
		}
	}

	// No type field: duck-typed fallback.
	if text, ok := sniffKey(obj, "delta"); ok {
		return Event{Kind: EventDelta, Text: text}
	}
	if text, ok := sniffKey(obj, "text"); ok {
		return Event{Kind: EventDone, Text: text}
	}
	if text, ok := sniffKey(obj, "transcript"); ok {
		return Event{Kind: EventDone, Text: text}
	}
	return Event{Kind: EventIgnore}
}

func errorMessage(obj map[string]any) (string, bool) {
	v, ok := obj["error"]
	if !ok || v == nil {
		return "", false
	}
	switch e := v.(type) {
	case string:
		return e, true
	case map[string]any:
		if msg := stringField(e, "message"); msg != "" {
			return msg, true
		}
		return "transcription service reported an error", true
	default:
		return "transcription service reported an error", true
	}
}

func stringField(obj map[string]any, key string) string {
	if s, ok := obj[key].(string); ok {
		return s
	}
	return ""
}

// firstTextKey extracts the payload of a typed event, preferring the
// explicit delta fragment over full-text fields.
func firstTextKey(obj map[string]any) string {
	for _, key := range []string{"delta", "text", "transcript", "message"} {
		if text, ok := sniffKey(obj, key); ok {
			return text
		}
	}
	return ""
}

// sniffKey looks for a string under key at the top level, then one
// level into nested objects and arrays.
func sniffKey(obj map[string]any, key string) (string, bool) {
	if s, ok := obj[key].(string); ok {
		return s, true
	}
	for _, v := range obj {
		switch nested := v.(type) {
		case map[string]any:
			if s, ok := nested[key].(string); ok {
				return s, true
			}
		case []any:
			for _, item := range nested {
				if m, ok := item.(map[string]any); ok {
					if s, ok := m[key].(string); ok {
						return s, true
					}
				}
			}
		}
	}
	return "", false
}
