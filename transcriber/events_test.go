package transcriber

import "testing"

func TestParseEvent(t *testing.T) {
	for _, tt := range []struct {
		name     string
		raw      string
		wantKind EventKind
		wantText string
	}{
		{
			"typed delta",
			`{"type":"conversation.item.input_audio_transcription.delta","delta":"hel"}`,
			EventDelta, "hel",
		},
		{
			"typed completed",
			`{"type":"conversation.item.input_audio_transcription.completed","transcript":"hello"}`,
			EventDone, "hello",
		},
		{
			"typed done sse",
			`{"type":"transcript.text.done","text":"hello world"}`,
			EventDone, "hello world",
		},
		{
			"typed error",
			`{"type":"error","message":"bad session"}`,
			EventError, "bad session",
		},
		{
			"error object precedence over type",
			`{"type":"transcript.text.delta","error":{"message":"quota exceeded"}}`,
			EventError, "quota exceeded",
		},
		{
			"error as string",
			`{"error":"boom"}`,
			EventError, "boom",
		},
		{
			"sniffed delta without type",
			`{"delta":"frag"}`,
			EventDelta, "frag",
		},
		{
			"sniffed nested text",
			`{"result":{"text":"final"}}`,
			EventDone, "final",
		},
		{
			"sniffed array transcript",
			`{"alternatives":[{"transcript":"final"}]}`,
			EventDone, "final",
		},
		{
			"delta preferred over text in typed event",
			`{"type":"transcript.text.delta","delta":"d","text":"full"}`,
			EventDelta, "d",
		},
		{
			"unknown typed event ignored",
			`{"type":"session.created"}`,
			EventIgnore, "",
		},
		{
			"unrelated object ignored",
			`{"usage":{"tokens":12}}`,
			EventIgnore, "",
		},
		{
			"invalid json ignored",
			`{not json`,
			EventIgnore, "",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseEvent([]byte(tt.raw))
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
		})
	}
}
