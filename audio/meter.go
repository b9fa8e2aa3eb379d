package audio

import (
	"encoding/binary"
	"math"
	"sync"
)

// MeterFrameMs is the amount of audio behind each meter sample.
const MeterFrameMs = 90

// MinDB is the level reported for an all-zero frame. -90 dBFS is below
// the quantization floor of 16-bit audio.
const MinDB = -90.0

// MeterSample is one periodic level reading over ~MeterFrameMs of audio.
type MeterSample struct {
	RMS             float64 // root-mean-square level, 0..1
	InstantDB       float64 // dBFS of this frame
	FrameDurationMs float64
}

// Meter accumulates capture PCM and emits one MeterSample per
// MeterFrameMs of audio through its callback. It is safe to feed from
// the capture backend's audio thread.
type Meter struct {
	sampleRate int
	onSample   func(MeterSample)

	mu  sync.Mutex
	buf []int16
}

func NewMeter(sampleRate int, onSample func(MeterSample)) *Meter {
	return &Meter{sampleRate: sampleRate, onSample: onSample}
}

func (m *Meter) frameSamples() int {
	return m.sampleRate * MeterFrameMs / 1000
}

// Feed consumes little-endian 16-bit mono PCM bytes.
func (m *Meter) Feed(data []byte) {
	m.mu.Lock()
	for i := 0; i+1 < len(data); i += 2 {
		m.buf = append(m.buf, int16(binary.LittleEndian.Uint16(data[i:])))
	}
	var frames [][]int16
	n := m.frameSamples()
	for len(m.buf) >= n {
		frame := make([]int16, n)
		copy(frame, m.buf[:n])
		m.buf = m.buf[n:]
		frames = append(frames, frame)
	}
	m.mu.Unlock()

	for _, frame := range frames {
		m.onSample(measure(frame, m.sampleRate))
	}
}

// Flush emits a final sample from any buffered remainder.
func (m *Meter) Flush() {
	m.mu.Lock()
	rest := m.buf
	m.buf = nil
	m.mu.Unlock()

	if len(rest) > 0 {
		m.onSample(measure(rest, m.sampleRate))
	}
}

func measure(frame []int16, sampleRate int) MeterSample {
	var sum float64
	for _, s := range frame {
		v := float64(s) / 32768.0
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(frame)))

	db := MinDB
	if rms > 0 {
		db = 20 * math.Log10(rms)
		if db < MinDB {
			db = MinDB
		}
	}

	return MeterSample{
		RMS:             rms,
		InstantDB:       db,
		FrameDurationMs: float64(len(frame)) / float64(sampleRate) * 1000,
	}
}
