package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EncodeWAV wraps 16-bit mono PCM samples in a standard RIFF header.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	dataSize := uint32(len(samples) * 2)
	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(Channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*Channels*BitsPerSample/8))
	binary.Write(buf, binary.LittleEndian, uint16(Channels*BitsPerSample/8))
	binary.Write(buf, binary.LittleEndian, uint16(BitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
	for _, s := range samples {
		binary.Write(buf, binary.LittleEndian, s)
	}

	return buf.Bytes(), nil
}

// DecodeWAV extracts 16-bit PCM samples from a RIFF container. Multi-
// channel input is downmixed to mono by averaging.
func DecodeWAV(data []byte) (samples []int16, sampleRate int, err error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE file")
	}

	var channels, bits int
	var pcm []byte

	// Walk chunks; real-world files carry LIST/INFO chunks before data.
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := data[pos+8:]
		if size > len(body) {
			size = len(body)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("wav fmt chunk too short (%d bytes)", size)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			if format != 1 {
				return nil, 0, fmt.Errorf("unsupported wav format %d (want PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits = int(binary.LittleEndian.Uint16(body[14:16]))
		case "data":
			pcm = body[:size]
		}
		pos += 8 + size
		if size%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}

	if sampleRate == 0 {
		return nil, 0, fmt.Errorf("wav missing fmt chunk")
	}
	if pcm == nil {
		return nil, 0, fmt.Errorf("wav missing data chunk")
	}
	if bits != 16 {
		return nil, 0, fmt.Errorf("unsupported wav bit depth %d (want 16)", bits)
	}
	if channels < 1 {
		return nil, 0, fmt.Errorf("wav reports %d channels", channels)
	}

	frameBytes := channels * 2
	n := len(pcm) / frameBytes
	samples = make([]int16, n)
	for i := 0; i < n; i++ {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[i*frameBytes+c*2:])))
		}
		samples[i] = int16(sum / int32(channels))
	}
	return samples, sampleRate, nil
}
