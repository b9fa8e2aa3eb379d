package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: DICTATE_LOG_PATH environment variable
	envPath := os.Getenv("DICTATE_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcribePath := filepath.Join(dir, "transcribe_log.txt")
	transcribeFile, err = os.OpenFile(transcribePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// UploadMetrics summarizes one upload-transport transcription.
type UploadMetrics struct {
	FileSizeKB    float64
	Streamed      bool
	Attempts      int
	DNSTimeMs     float64
	TLSTimeMs     float64
	TTFBMs        float64
	TotalTimeMs   float64
	MemoryAllocMB float64
}

func Transcription(m UploadMetrics, provider string, connReused bool) {
	if !logReady {
		return
	}

	connStatus := "new"
	if connReused {
		connStatus = "reused"
	}

	mode := "batch"
	if m.Streamed {
		mode = "stream"
	}

	diagLog.Info().
		Str("provider", provider).
		Str("mode", mode).
		Str("conn", connStatus).
		Int("attempts", m.Attempts).
		Float64("file_kb", m.FileSizeKB).
		Float64("dns_ms", m.DNSTimeMs).
		Float64("tls_ms", m.TLSTimeMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalTimeMs).
		Float64("mem_mb", m.MemoryAllocMB).
		Msg("transcription")
}

// RealtimeMetrics summarizes one realtime-transport transcription.
type RealtimeMetrics struct {
	ConnectMs    float64
	SentChunks   int
	SentKB       float64
	RecvMessages int
	RecvDelta    int
	TotalMs      float64
	AudioS       float64
}

func Realtime(m RealtimeMetrics) {
	if !logReady {
		return
	}
	diagLog.Info().
		Float64("connect_ms", m.ConnectMs).
		Int("sent_chunks", m.SentChunks).
		Float64("sent_kb", m.SentKB).
		Int("recv_messages", m.RecvMessages).
		Int("recv_delta", m.RecvDelta).
		Float64("total_ms", m.TotalMs).
		Float64("audio_s", m.AudioS).
		Msg("realtime_transcription")
}

func TranscriptionText(text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcribeFile.WriteString(line)
}

func SessionStart(provider, mode string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("provider", provider).
		Str("mode", mode).
		Msg("session_start")
}

func SessionStop(trigger string, durationS, encodeMs float64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("trigger", trigger).
		Float64("duration_s", durationS).
		Float64("encode_ms", encodeMs).
		Msg("session_stop")
}
