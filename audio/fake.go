package audio

import (
	"os"
	"sync"
	"time"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext replays a WAV file through the capture interface. Used by
// tests and the -fake flag for offline runs.
type FakeContext struct {
	pcm        []byte
	sampleRate int
	realtime   bool
}

func NewFakeContext(wavPath string, sampleRate int, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return &FakeContext{pcm: data, sampleRate: sampleRate, realtime: realtime}, nil
}

// NewFakeContextFromPCM wraps raw 16-bit mono PCM bytes.
func NewFakeContextFromPCM(pcm []byte, sampleRate int, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, sampleRate: sampleRate, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return nil, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig, cb DataCallback) (CaptureDevice, error) {
	return &FakeCapture{
		pcm:        f.pcm,
		sampleRate: f.sampleRate,
		realtime:   f.realtime,
		cb:         cb,
		audioDone:  make(chan struct{}),
	}, nil
}

type FakeCapture struct {
	pcm        []byte
	sampleRate int
	realtime   bool
	cb         DataCallback
	audioDone  chan struct{}

	mu       sync.Mutex
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone is closed once the whole file has been fed; after that the
// fake keeps producing silence until Stop.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) feedChunk(pos, chunkBytes int) int {
	end := min(pos+chunkBytes, len(f.pcm))
	chunk := make([]byte, end-pos)
	copy(chunk, f.pcm[pos:end])
	f.cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
	return end
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(f.sampleRate)
	if !f.realtime {
		interval = 0
	}

	go func() {
		defer close(f.feedDone)
		pos := 0
		silence := make([]byte, chunkBytes)
		audioFinished := false

		for {
			select {
			case <-f.stopCh:
				return
			default:
			}

			if pos < len(f.pcm) {
				pos = f.feedChunk(pos, chunkBytes)
			} else {
				if !audioFinished {
					audioFinished = true
					close(f.audioDone)
				}
				f.cb(silence, fakeFrameSize)
			}

			if interval > 0 {
				select {
				case <-f.stopCh:
					return
				case <-time.After(interval):
				}
			} else if pos >= len(f.pcm) {
				// Non-realtime mode still breathes once the file is
				// drained so Stop can interleave.
				select {
				case <-f.stopCh:
					return
				case <-time.After(time.Millisecond):
				}
			}
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FakeCapture) Close() { f.Stop() }
