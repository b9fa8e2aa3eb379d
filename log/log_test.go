package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(wd, "logs")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("DICTATE_LOG_PATH", "/tmp/dictate-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/dictate-env-log" {
		t.Errorf("got %q, want /tmp/dictate-env-log", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("DICTATE_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got == "" {
		t.Error("expected non-empty default directory")
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"diagnostics_log.txt", "transcribe_log.txt"} {
		path := filepath.Join(tmp, name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestTranscriptionText(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	TranscriptionText("hello world")

	data, err := os.ReadFile(filepath.Join(tmp, "transcribe_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.Contains(line, "hello world") {
		t.Errorf("transcribe_log.txt missing text, got: %q", line)
	}
	// format: "2006-01-02 15:04:05\t[pid]\ttext\n"
	if !strings.Contains(line, "\t") {
		t.Errorf("expected tab-separated format, got: %q", line)
	}
}

func TestTranscriptionMetricsLine(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	Transcription(UploadMetrics{
		FileSizeKB:    42.5,
		Streamed:      true,
		Attempts:      2,
		DNSTimeMs:     3.1,
		TLSTimeMs:     12.4,
		TTFBMs:        180.2,
		TotalTimeMs:   450.9,
		MemoryAllocMB: 8.3,
	}, "openai", true)

	data, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	for _, key := range []string{
		`"provider":"openai"`, `"mode":"stream"`, `"conn":"reused"`,
		`"attempts":2`, `"file_kb":42.5`, `"dns_ms":3.1`, `"tls_ms":12.4`,
		`"ttfb_ms":180.2`, `"total_ms":450.9`, `"mem_mb":8.3`,
	} {
		if !strings.Contains(line, key) {
			t.Errorf("diagnostics line missing %s, got: %q", key, line)
		}
	}
}

func TestSessionStopMetricsLine(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	SessionStop("auto_silence", 3.2, 14.7)

	data, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	for _, key := range []string{
		`"trigger":"auto_silence"`, `"duration_s":3.2`, `"encode_ms":14.7`,
	} {
		if !strings.Contains(line, key) {
			t.Errorf("session_stop line missing %s, got: %q", key, line)
		}
	}
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
