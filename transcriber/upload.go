package transcriber

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"dictate/log"
)

const (
	// DefaultUploadURL is the OpenAI-compatible transcription endpoint.
	DefaultUploadURL = "https://api.openai.com/v1/audio/transcriptions"

	fallbackAttempts    = 3
	fallbackBackoffBase = 400 * time.Millisecond

	// KeepWarmWindow covers a recording plus the upload that follows.
	KeepWarmWindow = 30 * time.Second

	maxErrorBodyBytes = 4 << 10
	maxEventLineBytes = 1 << 20
)

// Options describes one transcription attempt.
type Options struct {
	Model      string
	Prompt     string
	Language   string
	EnableTrim bool
}

// UploadTranscriber POSTs a finished recording as chunked multipart and
// reads incremental text from an SSE-style response, falling back to a
// one-shot non-streaming request when the stream fails recoverably.
type UploadTranscriber struct {
	client *TracedClient
	warmer *Warmer
	apiURL string
}

func NewUpload(apiURL string) *UploadTranscriber {
	if apiURL == "" {
		apiURL = DefaultUploadURL
	}
	c := NewTracedClient()
	return &UploadTranscriber{
		client: c,
		warmer: NewWarmer(c.client, apiURL),
		apiURL: apiURL,
	}
}

// Warmer exposes the connection warmer so session lifecycle events can
// drive it.
func (u *UploadTranscriber) Warmer() *Warmer { return u.warmer }

func (u *UploadTranscriber) Name() string { return "upload" }

// Transcribe attempts the streaming path once, then falls back to the
// non-streaming path with bounded retries when the failure is
// recoverable. Terminal errors propagate immediately.
func (u *UploadTranscriber) Transcribe(ctx context.Context, file string, opts Options, apiKey string, onDelta func(string)) (string, error) {
	text, err := u.transcribeStream(ctx, file, opts, apiKey, onDelta)
	if err == nil {
		return text, nil
	}
	te := classify(err)
	if !te.Recoverable() {
		return "", te
	}
	log.Warnf("streaming upload failed (%s), falling back to batch: %v", te.Kind, te)
	return u.transcribeBatch(ctx, file, opts, apiKey)
}

// newRequest builds a multipart POST whose body is produced through a
// pipe so the audio file is never materialized in memory. The content
// length is computed up front from the measured prefix, the file size
// and the closing boundary.
func (u *UploadTranscriber) newRequest(ctx context.Context, file string, opts Options, apiKey string, stream bool) (*http.Request, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	var head bytes.Buffer
	mw := multipart.NewWriter(&head)
	mw.WriteField("model", opts.Model)
	if stream {
		mw.WriteField("response_format", "json")
		mw.WriteField("stream", "true")
	} else {
		mw.WriteField("response_format", "text")
	}
	if opts.Language != "" {
		mw.WriteField("language", opts.Language)
	}
	if opts.Prompt != "" {
		mw.WriteField("prompt", opts.Prompt)
	}
	if _, err := mw.CreateFormFile("file", filepath.Base(file)); err != nil {
		f.Close()
		return nil, err
	}
	trailer := fmt.Sprintf("\r\n--%s--\r\n", mw.Boundary())
	contentLength := int64(head.Len()) + info.Size() + int64(len(trailer))

	pr, pw := io.Pipe()
	go func() {
		defer f.Close()
		if _, err := pw.Write(head.Bytes()); err != nil {
			pw.CloseWithError(err)
			return
		}
		// Chunked copy with a cancellation check between writes, never
		// mid-write.
		buf := make([]byte, 32*1024)
		for {
			if err := ctx.Err(); err != nil {
				pw.CloseWithError(err)
				return
			}
			n, rerr := f.Read(buf)
			if n > 0 {
				if _, werr := pw.Write(buf[:n]); werr != nil {
					pw.CloseWithError(werr)
					return
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				pw.CloseWithError(rerr)
				return
			}
		}
		if _, err := io.WriteString(pw, trailer); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.apiURL, pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.ContentLength = contentLength
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+apiKey)
	return req, nil
}

func (u *UploadTranscriber) transcribeStream(ctx context.Context, file string, opts Options, apiKey string, onDelta func(string)) (string, error) {
	req, err := u.newRequest(ctx, file, opts, apiKey, true)
	if err != nil {
		return "", classify(err)
	}
	start := time.Now()

	resp, metrics, err := u.client.DoStream(req)
	if err != nil {
		return "", classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", serverError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var acc strings.Builder
	final := ""
	sawDone := false

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxEventLineBytes)
scan:
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		payload := line
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			payload = strings.TrimSpace(rest)
		}
		if payload == "[DONE]" {
			sawDone = true
			break
		}

		ev := ParseEvent([]byte(payload))
		switch ev.Kind {
		case EventDelta:
			acc.WriteString(ev.Text)
			if onDelta != nil {
				onDelta(acc.String())
			}
		case EventDone:
			if ev.Text != "" {
				final = ev.Text
			}
			sawDone = true
			break scan
		case EventError:
			return "", newError(KindInvalidResponse, ev.Text)
		}
	}
	if err := scanner.Err(); err != nil && !sawDone {
		return "", classify(err)
	}

	// Accumulated deltas are the answer when no explicit done arrived.
	if final == "" {
		final = acc.String()
	}
	final = strings.TrimSpace(final)
	if final == "" {
		return "", newError(KindEmptyText, "transcription returned no text")
	}

	metrics.Download = time.Since(start) - metrics.TTFB
	u.logMetrics(file, metrics, true, 1)
	return final, nil
}

// transcribeBatch is the non-streaming fallback: up to fallbackAttempts
// one-shot requests with doubling backoff. The last attempt's error is
// surfaced verbatim.
func (u *UploadTranscriber) transcribeBatch(ctx context.Context, file string, opts Options, apiKey string) (string, error) {
	delay := fallbackBackoffBase
	var lastErr error

	for attempt := 1; attempt <= fallbackAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", classify(ctx.Err())
			case <-time.After(delay):
			}
			delay = NextDelay(delay)
		}

		text, err := u.batchOnce(ctx, file, opts, apiKey, attempt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !ShouldRetry(err) {
			return "", err
		}
		log.Warnf("batch attempt %d/%d failed: %v", attempt, fallbackAttempts, err)
	}
	return "", lastErr
}

func (u *UploadTranscriber) batchOnce(ctx context.Context, file string, opts Options, apiKey string, attempt int) (string, error) {
	req, err := u.newRequest(ctx, file, opts, apiKey, false)
	if err != nil {
		return "", classify(err)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", classify(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", serverError(resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}

	text := strings.TrimSpace(string(resp.Body))
	if text == "" {
		return "", newError(KindEmptyText, "transcription returned no text")
	}

	u.logMetrics(file, resp.Metrics, false, attempt)
	return text, nil
}

func (u *UploadTranscriber) logMetrics(file string, metrics *NetworkMetrics, streamed bool, attempts int) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var sizeKB float64
	if info, err := os.Stat(file); err == nil {
		sizeKB = float64(info.Size()) / 1024
	}

	log.Transcription(log.UploadMetrics{
		FileSizeKB:    sizeKB,
		Streamed:      streamed,
		Attempts:      attempts,
		DNSTimeMs:     float64(metrics.DNS.Milliseconds()),
		TLSTimeMs:     float64(metrics.TLS.Milliseconds()),
		TTFBMs:        float64(metrics.TTFB.Milliseconds()),
		TotalTimeMs:   float64(metrics.Sum().Milliseconds()),
		MemoryAllocMB: float64(mem.Alloc) / 1024 / 1024,
	}, "upload", metrics.ConnReused)
}
