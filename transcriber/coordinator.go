package transcriber

import (
	"context"
	"fmt"
	"os"
	"time"

	"dictate/encoder"
	"dictate/log"
	"dictate/trim"
)

// Transport is one complete way of turning a recording into text.
type Transport interface {
	Name() string
	Transcribe(ctx context.Context, file string, opts Options, apiKey string, onDelta func(string)) (string, error)
}

const (
	// minFileBytes guards against handing a file to a transport while
	// the encoder is still flushing it.
	minFileBytes = 1024

	// Trimming a short recording costs more latency than it saves.
	// Compressed sources pay a decode on top, so they need more audio
	// before trimming pays off.
	trimMinSeconds           = 1.5
	trimMinSecondsCompressed = 3.0

	defaultTrimBudget = 1 * time.Second
)

// Coordinator runs the post-recording pipeline: best-effort time-boxed
// trim, transport dispatch with a one-time cross-transport fallback,
// and unconditional temp-file cleanup.
type Coordinator struct {
	primary    Transport
	fallback   Transport // may be nil
	trimBudget time.Duration
}

func NewCoordinator(primary, fallback Transport) *Coordinator {
	return &Coordinator{
		primary:    primary,
		fallback:   fallback,
		trimBudget: defaultTrimBudget,
	}
}

// Transcribe produces the final text for a finished recording. file and
// any trimmed derivative are deleted before returning, on every path.
func (c *Coordinator) Transcribe(ctx context.Context, file string, recordedSeconds float64, opts Options, apiKey string, onDelta func(string)) (string, error) {
	tempFiles := []string{file}
	defer func() {
		for _, f := range tempFiles {
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				log.Warnf("removing temp audio %s: %v", f, err)
			}
		}
	}()

	info, err := os.Stat(file)
	if err != nil {
		return "", &Error{Kind: KindFileNotReady, Message: fmt.Sprintf("stat %s", file), Err: err}
	}
	if info.Size() < minFileBytes {
		return "", newError(KindFileNotReady, fmt.Sprintf("recording is only %d bytes", info.Size()))
	}

	uploadFile := file
	if c.shouldTrim(file, recordedSeconds, opts) {
		if trimmed, ok := c.trimWithBudget(ctx, file); ok {
			if tinfo, err := os.Stat(trimmed); err == nil {
				log.Infof("trim: saved %.0fKB of %.0fKB",
					float64(info.Size()-tinfo.Size())/1024, float64(info.Size())/1024)
			}
			uploadFile = trimmed
			tempFiles = append(tempFiles, trimmed)
		}
	}

	text, err := c.primary.Transcribe(ctx, uploadFile, opts, apiKey, onDelta)
	if err == nil {
		return text, nil
	}
	terr := classify(err)
	if c.fallback == nil || !terr.Recoverable() {
		return "", terr
	}
	log.Warnf("%s transport failed (%v), falling back to %s", c.primary.Name(), terr, c.fallback.Name())
	text, err = c.fallback.Transcribe(ctx, uploadFile, opts, apiKey, onDelta)
	if err != nil {
		return "", classify(err)
	}
	return text, nil
}

func (c *Coordinator) shouldTrim(file string, recordedSeconds float64, opts Options) bool {
	if !opts.EnableTrim {
		return false
	}
	floor := trimMinSeconds
	if encoder.IsCompressed(file) {
		floor = trimMinSecondsCompressed
	}
	return recordedSeconds >= floor
}

// trimWithBudget races the trimmer against a deadline. A slow trim must
// never delay transcription, so a late result is discarded and its
// output file removed.
func (c *Coordinator) trimWithBudget(ctx context.Context, file string) (string, bool) {
	type result struct {
		path    string
		trimmed bool
	}
	ch := make(chan result, 1)
	go func() {
		p, ok := trim.File(file, trim.DefaultThreshold, trim.DefaultPaddingSeconds)
		ch <- result{p, ok}
	}()

	timer := time.NewTimer(c.trimBudget)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res.path, res.trimmed
	case <-timer.C:
		log.Warnf("trim exceeded %s budget, uploading untrimmed audio", c.trimBudget)
	case <-ctx.Done():
	}
	go func() {
		if res := <-ch; res.trimmed {
			os.Remove(res.path)
		}
	}()
	return "", false
}
