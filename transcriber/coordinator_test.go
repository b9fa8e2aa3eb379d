package transcriber

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dictate/encoder"
)

type fakeTransport struct {
	name    string
	text    string
	err     error
	calls   int
	gotFile string
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Transcribe(ctx context.Context, file string, opts Options, apiKey string, onDelta func(string)) (string, error) {
	f.calls++
	f.gotFile = file
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func mustNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("%s should have been deleted", path)
	}
}

func TestCoordinatorPrimarySuccess(t *testing.T) {
	primary := &fakeTransport{name: "primary", text: "done"}
	fallback := &fakeTransport{name: "fallback", text: "never"}
	c := NewCoordinator(primary, fallback)

	file := writeTempAudio(t, 4096)
	text, err := c.Transcribe(context.Background(), file, 1.0, Options{Model: "m"}, "k", nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "done" {
		t.Errorf("text = %q, want %q", text, "done")
	}
	if fallback.calls != 0 {
		t.Error("fallback should not run when the primary succeeds")
	}
	mustNotExist(t, file)
}

func TestCoordinatorFallsBackOnRecoverable(t *testing.T) {
	primary := &fakeTransport{name: "primary", err: &Error{Kind: KindServer, Status: 503, Message: "overloaded"}}
	fallback := &fakeTransport{name: "fallback", text: "rescued"}
	c := NewCoordinator(primary, fallback)

	file := writeTempAudio(t, 4096)
	text, err := c.Transcribe(context.Background(), file, 1.0, Options{Model: "m"}, "k", nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "rescued" {
		t.Errorf("text = %q, want %q", text, "rescued")
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Errorf("primary=%d fallback=%d, want 1 and 1", primary.calls, fallback.calls)
	}
	mustNotExist(t, file)
}

func TestCoordinatorTerminalErrorSkipsFallback(t *testing.T) {
	primary := &fakeTransport{name: "primary", err: &Error{Kind: KindUnauthorized, Status: 401}}
	fallback := &fakeTransport{name: "fallback", text: "never"}
	c := NewCoordinator(primary, fallback)

	file := writeTempAudio(t, 4096)
	_, err := c.Transcribe(context.Background(), file, 1.0, Options{Model: "m"}, "k", nil)
	var te *Error
	if !errors.As(err, &te) || te.Kind != KindUnauthorized {
		t.Fatalf("err = %v, want KindUnauthorized", err)
	}
	if fallback.calls != 0 {
		t.Error("fallback must not run on terminal errors")
	}
	mustNotExist(t, file)
}

func TestCoordinatorRejectsTinyFile(t *testing.T) {
	primary := &fakeTransport{name: "primary", text: "never"}
	c := NewCoordinator(primary, nil)

	file := writeTempAudio(t, 100)
	_, err := c.Transcribe(context.Background(), file, 0.1, Options{Model: "m"}, "k", nil)
	var te *Error
	if !errors.As(err, &te) || te.Kind != KindFileNotReady {
		t.Fatalf("err = %v, want KindFileNotReady", err)
	}
	if primary.calls != 0 {
		t.Error("transport should not see an implausibly small file")
	}
	mustNotExist(t, file)
}

func TestCoordinatorRejectsMissingFile(t *testing.T) {
	c := NewCoordinator(&fakeTransport{name: "primary"}, nil)
	_, err := c.Transcribe(context.Background(), filepath.Join(t.TempDir(), "gone.wav"), 1.0, Options{Model: "m"}, "k", nil)
	var te *Error
	if !errors.As(err, &te) || te.Kind != KindFileNotReady {
		t.Fatalf("err = %v, want KindFileNotReady", err)
	}
}

// wavWithSilentEdges writes seconds of audio with half a second of
// silence on each edge and loud samples in between.
func wavWithSilentEdges(t *testing.T, seconds float64) string {
	t.Helper()
	n := int(seconds * float64(encoder.SampleRate))
	edge := encoder.SampleRate / 2
	samples := make([]int16, n)
	for i := edge; i < n-edge; i++ {
		samples[i] = 12000
	}
	data, err := encoder.EncodeWAV(samples, encoder.SampleRate)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "padded.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCoordinatorTrimsLongRecording(t *testing.T) {
	primary := &fakeTransport{name: "primary", text: "done"}
	c := NewCoordinator(primary, nil)

	file := wavWithSilentEdges(t, 3.0)
	_, err := c.Transcribe(context.Background(), file, 3.0, Options{Model: "m", EnableTrim: true}, "k", nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if primary.gotFile == file {
		t.Error("transport should have received the trimmed file")
	}
	if !strings.Contains(primary.gotFile, "trimmed") {
		t.Errorf("transport got %q, want a trimmed derivative", primary.gotFile)
	}
	mustNotExist(t, file)
	mustNotExist(t, primary.gotFile)
}

func TestCoordinatorSkipsTrimForShortRecording(t *testing.T) {
	primary := &fakeTransport{name: "primary", text: "done"}
	c := NewCoordinator(primary, nil)

	file := wavWithSilentEdges(t, 3.0)
	_, err := c.Transcribe(context.Background(), file, 1.0, Options{Model: "m", EnableTrim: true}, "k", nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if primary.gotFile != file {
		t.Errorf("transport got %q, want the original %q", primary.gotFile, file)
	}
}
