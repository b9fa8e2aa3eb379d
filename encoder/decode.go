package encoder

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"
)

// DecodeFile reads a recorded audio file into 16-bit mono PCM samples.
// WAV and FLAC are the two formats this process ever writes.
func DecodeFile(path string) (samples []int16, sampleRate int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	return Decode(data)
}

func Decode(data []byte) (samples []int16, sampleRate int, err error) {
	switch {
	case len(data) >= 4 && string(data[:4]) == "fLaC":
		return decodeFLAC(data)
	case len(data) >= 4 && string(data[:4]) == "RIFF":
		return DecodeWAV(data)
	default:
		return nil, 0, fmt.Errorf("unrecognized audio container")
	}
}

// IsCompressed reports whether the file at path holds compressed audio.
// Decoding a compressed source costs more relative to its size, which
// matters when deciding whether edge-trimming is worth the latency.
func IsCompressed(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return false
	}
	return string(magic) == "fLaC"
}

func decodeFLAC(data []byte) ([]int16, int, error) {
	stream, err := flac.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("parsing flac: %w", err)
	}

	info := stream.Info
	shift := 0
	if info.BitsPerSample > 16 {
		shift = int(info.BitsPerSample) - 16
	}

	var samples []int16
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("reading flac frame: %w", err)
		}
		nch := len(f.Subframes)
		if nch == 0 {
			continue
		}
		n := f.Subframes[0].NSamples
		for i := 0; i < n; i++ {
			var sum int64
			for _, sf := range f.Subframes {
				sum += int64(sf.Samples[i])
			}
			s := sum / int64(nch) >> shift
			if s > 32767 {
				s = 32767
			} else if s < -32768 {
				s = -32768
			}
			samples = append(samples, int16(s))
		}
	}

	return samples, int(info.SampleRate), nil
}
