package encoder

import "time"

// Capture format shared by the whole pipeline: the meter, the silence
// detector thresholds and the transports all assume this rate.
const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// Encoder turns int16 PCM blocks into an encoded file body held in
// memory until Close.
type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	SampleCount() uint64
	AddEncodeTime(d time.Duration)
	EncodeTime() time.Duration
}
