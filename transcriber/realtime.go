package transcriber

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"dictate/encoder"
	"dictate/log"
)

const (
	// DefaultRealtimeURL is the realtime transcription endpoint.
	DefaultRealtimeURL = "wss://api.openai.com/v1/realtime?intent=transcription"

	// realtimeSampleRate is the PCM16 rate the protocol expects.
	realtimeSampleRate = 24000

	realtimeChunkMs    = 670
	realtimeChunkBytes = realtimeSampleRate * 2 * realtimeChunkMs / 1000

	defaultRealtimeTimeout = 30 * time.Second
)

// RealtimeConfig tunes the server-side turn detector and the hard
// end-to-end timeout.
type RealtimeConfig struct {
	URL               string
	SilenceDurationMs int
	PrefixPaddingMs   int
	Timeout           time.Duration
}

// RealtimeTranscriber streams a finished recording as raw PCM over a
// WebSocket and collects delta/final events. The whole exchange races a
// hard timeout; a timeout is a recoverable failure the caller may catch
// to fall back to the upload path.
type RealtimeTranscriber struct {
	cfg RealtimeConfig
}

func NewRealtime(cfg RealtimeConfig) *RealtimeTranscriber {
	if cfg.URL == "" {
		cfg.URL = DefaultRealtimeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRealtimeTimeout
	}
	if cfg.SilenceDurationMs <= 0 {
		cfg.SilenceDurationMs = 500
	}
	if cfg.PrefixPaddingMs <= 0 {
		cfg.PrefixPaddingMs = 300
	}
	return &RealtimeTranscriber{cfg: cfg}
}

func (r *RealtimeTranscriber) Name() string { return "realtime" }

type sessionUpdate struct {
	Type    string          `json:"type"`
	Session realtimeSession `json:"session"`
}

type realtimeSession struct {
	InputAudioFormat        string           `json:"input_audio_format"`
	InputAudioTranscription transcriptionCfg `json:"input_audio_transcription"`
	TurnDetection           turnDetection    `json:"turn_detection"`
}

type transcriptionCfg struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

type turnDetection struct {
	Type              string `json:"type"`
	SilenceDurationMs int    `json:"silence_duration_ms"`
	PrefixPaddingMs   int    `json:"prefix_padding_ms"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func (r *RealtimeTranscriber) Transcribe(ctx context.Context, file string, opts Options, apiKey string, onDelta func(string)) (string, error) {
	samples, rate, err := encoder.DecodeFile(file)
	if err != nil {
		return "", &Error{Kind: KindInvalidResponse, Message: "decoding recording", Err: err}
	}
	pcm := pcmBytes(Resample(samples, rate, realtimeSampleRate))
	audioSeconds := float64(len(pcm)) / float64(realtimeSampleRate*2)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	conn, _, err := websocket.Dial(ctx, r.cfg.URL, &websocket.DialOptions{
		HTTPHeader: map[string][]string{
			"Authorization": {"Bearer " + apiKey},
			"OpenAI-Beta":   {"realtime=v1"},
		},
	})
	if err != nil {
		return "", classify(err)
	}
	conn.SetReadLimit(1 << 20)
	connectDur := time.Since(start)

	update := sessionUpdate{
		Type: "transcription_session.update",
		Session: realtimeSession{
			InputAudioFormat: "pcm16",
			InputAudioTranscription: transcriptionCfg{
				Model:    opts.Model,
				Language: opts.Language,
				Prompt:   opts.Prompt,
			},
			TurnDetection: turnDetection{
				Type:              "server_vad",
				SilenceDurationMs: r.cfg.SilenceDurationMs,
				PrefixPaddingMs:   r.cfg.PrefixPaddingMs,
			},
		},
	}
	if err := writeJSON(ctx, conn, update); err != nil {
		conn.Close(websocket.StatusInternalError, "session update failed")
		return "", classify(err)
	}

	var (
		mu         sync.Mutex
		acc        strings.Builder
		final      string
		sentChunks int
		recvMsgs   int
		recvDeltas int
	)

	g, gctx := errgroup.WithContext(ctx)

	// With server_vad turn detection the transcript can complete while
	// audio is still being appended. Once the receiver has the final
	// text the sender's remaining writes are moot, so it is cancelled
	// separately from the group and its failures are swallowed.
	sendCtx, stopSending := context.WithCancel(gctx)
	defer stopSending()
	senderDone := func() bool {
		return sendCtx.Err() != nil && gctx.Err() == nil
	}

	g.Go(func() error {
		for off := 0; off < len(pcm); off += realtimeChunkBytes {
			// Cancellation is checked at chunk boundaries so the
			// receiver finishing or failing stops the writer promptly.
			if senderDone() {
				return nil
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			end := min(off+realtimeChunkBytes, len(pcm))
			msg := audioAppend{
				Type:  "input_audio_buffer.append",
				Audio: base64.StdEncoding.EncodeToString(pcm[off:end]),
			}
			if err := writeJSON(sendCtx, conn, msg); err != nil {
				if senderDone() {
					return nil
				}
				return err
			}
			mu.Lock()
			sentChunks++
			mu.Unlock()
		}
		if err := writeJSON(sendCtx, conn, map[string]string{"type": "input_audio_buffer.commit"}); err != nil && !senderDone() {
			return err
		}
		return nil
	})

	g.Go(func() error {
		for {
			_, data, err := conn.Read(gctx)
			if err != nil {
				return err
			}
			mu.Lock()
			recvMsgs++
			mu.Unlock()

			ev := ParseEvent(data)
			switch ev.Kind {
			case EventDelta:
				mu.Lock()
				acc.WriteString(ev.Text)
				recvDeltas++
				preview := acc.String()
				mu.Unlock()
				if onDelta != nil {
					onDelta(preview)
				}
			case EventDone:
				mu.Lock()
				if ev.Text != "" {
					final = ev.Text
				} else {
					final = acc.String()
				}
				mu.Unlock()
				stopSending()
				return nil
			case EventError:
				return newError(KindInvalidResponse, ev.Text)
			}
		}
	})

	if err := g.Wait(); err != nil {
		conn.Close(websocket.StatusInternalError, "transcription failed")
		return "", classify(err)
	}
	conn.Close(websocket.StatusNormalClosure, "")

	log.Realtime(log.RealtimeMetrics{
		ConnectMs:    float64(connectDur.Milliseconds()),
		SentChunks:   sentChunks,
		SentKB:       float64(len(pcm)) / 1024,
		RecvMessages: recvMsgs,
		RecvDelta:    recvDeltas,
		TotalMs:      float64(time.Since(start).Milliseconds()),
		AudioS:       audioSeconds,
	})

	final = strings.TrimSpace(final)
	if final == "" {
		return "", newError(KindEmptyText, "transcription returned no text")
	}
	return final, nil
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
