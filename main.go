package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dictate/audio"
	"dictate/encoder"
	"dictate/log"
	"dictate/transcriber"
)

var version = "dev"

const (
	defaultMaxDuration = 5 * time.Minute
	previewMaxCols     = 80
)

type appConfig struct {
	model       string
	language    string
	prompt      string
	format      string
	realtime    bool
	trim        bool
	autoStop    bool
	pickDevice  bool
	fakeWAV     string
	maxDuration time.Duration
}

func main() {
	var cfg appConfig
	flag.StringVar(&cfg.model, "model", "gpt-4o-mini-transcribe", "transcription model")
	flag.StringVar(&cfg.language, "lang", "", "BCP-47 language hint (e.g. en, de)")
	flag.StringVar(&cfg.prompt, "prompt", "", "transcription prompt / vocabulary hint")
	flag.StringVar(&cfg.format, "format", "flac", "recording format: flac or wav")
	flag.BoolVar(&cfg.realtime, "realtime", false, "use the realtime WebSocket transport (upload as fallback)")
	flag.BoolVar(&cfg.trim, "trim", true, "trim leading/trailing silence before upload")
	flag.BoolVar(&cfg.autoStop, "autostop", true, "stop automatically after sustained silence")
	flag.BoolVar(&cfg.pickDevice, "pick-device", false, "interactively choose the capture device")
	flag.StringVar(&cfg.fakeWAV, "fake", "", "replay a WAV file instead of capturing the microphone")
	flag.DurationVar(&cfg.maxDuration, "max-duration", defaultMaxDuration, "hard recording length limit")
	logPath := flag.String("logpath", "", "log directory (default: DICTATE_LOG_PATH or the OS data dir)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("dictate", version)
		return
	}

	if dir, err := log.ResolveDir(*logPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not resolve log dir: %v\n", err)
	} else {
		log.SetDir(dir)
		if err := log.Init(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
		}
	}
	defer log.Close()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: OPENAI_API_KEY is not set")
		os.Exit(1)
	}

	if err := run(cfg, apiKey); err != nil {
		log.Errorf("session failed: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg appConfig, apiKey string) error {
	actx, err := newAudioContext(cfg)
	if err != nil {
		return fmt.Errorf("opening audio backend: %w", err)
	}
	defer actx.Close()

	var device *audio.DeviceInfo
	if cfg.pickDevice && cfg.fakeWAV == "" {
		device, err = audio.SelectDevice(actx)
		if err != nil {
			return err
		}
		if device != nil && audio.IsBluetooth(device.Name) {
			fmt.Fprintln(os.Stderr, "Note: bluetooth mics often capture at phone quality")
		}
	}

	upload := transcriber.NewUpload("")
	var primary transcriber.Transport = upload
	var fallback transcriber.Transport
	if cfg.realtime {
		primary = transcriber.NewRealtime(transcriber.RealtimeConfig{
			SilenceDurationMs: int(defaultSilenceDurationMs),
		})
		fallback = upload
	}
	coord := transcriber.NewCoordinator(primary, fallback)

	// Warm the connection now so the upload after the recording skips
	// the TLS handshake.
	upload.Warmer().KeepWarm(transcriber.KeepWarmWindow)

	rec, err := newRecorder(cfg.format)
	if err != nil {
		return err
	}

	session := newSessionCoordinator()
	detCfg := defaultDetectorConfig()

	meterSamples := make(chan audio.MeterSample, 64)
	meter := audio.NewMeter(encoder.SampleRate, func(s audio.MeterSample) {
		select {
		case meterSamples <- s:
		default: // dropping a meter frame is harmless
		}
	})

	capture, err := actx.NewCapture(device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	}, func(data []byte, _ uint32) {
		rec.feed(data)
		meter.Feed(data)
	})
	if err != nil {
		return fmt.Errorf("opening capture device: %w", err)
	}
	defer capture.Close()

	session.BeginSession(detCfg)
	if err := capture.Start(); err != nil {
		return fmt.Errorf("starting capture: %w", err)
	}
	log.SessionStart(primary.Name(), cfg.format)
	fmt.Fprintln(os.Stderr, "Recording... (ctrl+c to stop)")

	trigger := waitForStop(session, capture, meterSamples, cfg, detCfg)

	capture.Stop()
	meter.Flush()
	session.SetPhase(phaseTranscribing)
	upload.Warmer().KeepWarm(transcriber.KeepWarmWindow)

	recordedSeconds := session.Elapsed().Seconds()
	defer session.FinishStop()

	path, err := rec.writeTemp()
	if err != nil {
		return fmt.Errorf("writing recording: %w", err)
	}

	// A second ctrl+c during transcription cancels it silently.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	preview := transcriber.NewCoalescer(transcriber.CoalesceInterval, printPreview)
	opts := transcriber.Options{
		Model:      cfg.model,
		Prompt:     cfg.prompt,
		Language:   cfg.language,
		EnableTrim: cfg.trim,
	}

	text, err := coord.Transcribe(ctx, path, recordedSeconds, opts, apiKey, preview.Push)
	preview.Flush()
	fmt.Fprint(os.Stderr, "\r\x1b[K")
	log.SessionStop(trigger.String(), recordedSeconds, rec.encodeMs())

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil // user cancelled, not a failure
		}
		return err
	}

	log.TranscriptionText(text)
	fmt.Println(text)
	return nil
}

func newAudioContext(cfg appConfig) (audio.Context, error) {
	if cfg.fakeWAV != "" {
		return audio.NewFakeContext(cfg.fakeWAV, encoder.SampleRate, true)
	}
	return audio.NewContext()
}

// waitForStop blocks until a stop trigger claims the session: ctrl+c,
// sustained silence, the max-duration limit, or (in fake mode) the
// source file running out.
func waitForStop(session *sessionCoordinator, capture audio.CaptureDevice, meterSamples <-chan audio.MeterSample, cfg appConfig, detCfg detectorConfig) stopTrigger {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	maxTimer := time.NewTimer(cfg.maxDuration)
	defer maxTimer.Stop()

	var audioDone <-chan struct{}
	if fc, ok := capture.(interface{ AudioDone() <-chan struct{} }); ok {
		audioDone = fc.AudioDone()
	}

	for {
		select {
		case <-sig:
			if session.BeginStop(stopManual) {
				return stopManual
			}
		case <-audioDone:
			audioDone = nil
			if session.BeginStop(stopManual) {
				return stopManual
			}
		case <-maxTimer.C:
			if session.BeginStop(stopMaxDuration) {
				return stopMaxDuration
			}
		case s := <-meterSamples:
			stop, dbg := session.EvaluateAutoStop(s, cfg.autoStop, detCfg)
			if stop && session.BeginStop(stopAutoSilence) {
				log.Infof("auto-stop: ema=%.1fdB accum=%.0fms", dbg.EmaDb, dbg.SilenceAccumMs)
				return stopAutoSilence
			}
		}
	}
}

func printPreview(text string) {
	if len(text) > previewMaxCols {
		text = "…" + text[len(text)-previewMaxCols:]
	}
	fmt.Fprintf(os.Stderr, "\r\x1b[K%s", text)
}

// recorder accumulates capture callbacks into an encoded file body.
type recorder struct {
	mu      sync.Mutex
	format  string
	enc     encoder.Encoder // flac only
	pending []int16
	samples []int16 // wav only
}

func newRecorder(format string) (*recorder, error) {
	r := &recorder{format: format}
	switch format {
	case "flac":
		enc, err := encoder.NewFlac()
		if err != nil {
			return nil, err
		}
		r.enc = enc
	case "wav":
	default:
		return nil, fmt.Errorf("unknown format %q (want flac or wav)", format)
	}
	return r, nil
}

func (r *recorder) feed(data []byte) {
	n := len(data) / 2
	block := make([]int16, n)
	for i := range n {
		block[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		r.samples = append(r.samples, block...)
		return
	}
	r.pending = append(r.pending, block...)
	for len(r.pending) >= encoder.BlockSize {
		start := time.Now()
		if err := r.enc.EncodeBlock(r.pending[:encoder.BlockSize]); err != nil {
			log.Warnf("flac encode: %v", err)
		}
		r.enc.AddEncodeTime(time.Since(start))
		r.pending = r.pending[encoder.BlockSize:]
	}
}

// encodeMs reports the cumulative time spent inside the block encoder,
// zero for the raw WAV path.
func (r *recorder) encodeMs() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return 0
	}
	return float64(r.enc.EncodeTime()) / float64(time.Millisecond)
}

func (r *recorder) writeTemp() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var data []byte
	ext := ".wav"
	if r.enc != nil {
		if len(r.pending) > 0 {
			if err := r.enc.EncodeBlock(r.pending); err != nil {
				return "", err
			}
			r.pending = nil
		}
		if err := r.enc.Close(); err != nil {
			return "", err
		}
		data = r.enc.Bytes()
		ext = ".flac"
	} else {
		var err error
		data, err = encoder.EncodeWAV(r.samples, encoder.SampleRate)
		if err != nil {
			return "", err
		}
	}

	f, err := os.CreateTemp("", "dictate-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
