// Package trim removes leading and trailing silence from a finished
// recording to cut upload time. It always fails open: any input it
// cannot improve is returned unchanged.
package trim

import (
	"os"
	"path/filepath"

	"dictate/encoder"
	"dictate/log"
)

const (
	// DefaultThreshold is the normalized amplitude above which a sample
	// counts as speech for edge detection.
	DefaultThreshold = 0.02
	// DefaultPaddingSeconds is kept on each side of the detected speech
	// so word onsets are not clipped.
	DefaultPaddingSeconds = 0.15
)

// Samples returns the slice of samples spanning the first through last
// sample whose normalized amplitude exceeds threshold, expanded by
// padding on each side. The input is returned as-is when no sample
// exceeds the threshold or the scan result is inconsistent.
func Samples(samples []int16, threshold float64, paddingSeconds float64, sampleRate int) []int16 {
	if len(samples) == 0 || threshold <= 0 {
		return samples
	}

	limit := int16(threshold * 32768)
	if limit < 1 {
		limit = 1
	}

	speechStart := -1
	for i, s := range samples {
		if s >= limit || s <= -limit {
			speechStart = i
			break
		}
	}
	if speechStart < 0 {
		return samples // nothing above threshold, nothing to anchor on
	}

	speechEnd := -1
	for i := len(samples) - 1; i >= 0; i-- {
		s := samples[i]
		if s >= limit || s <= -limit {
			speechEnd = i
			break
		}
	}
	if speechEnd < speechStart {
		return samples
	}

	pad := int(paddingSeconds * float64(sampleRate))
	start := speechStart - pad
	if start < 0 {
		start = 0
	}
	end := speechEnd + pad + 1
	if end > len(samples) {
		end = len(samples)
	}

	return samples[start:end]
}

// File trims the recording at path and writes the result as a WAV next
// to it. It returns the path to use for upload and whether that path is
// a new trimmed file the caller must clean up. The original is kept
// whenever trimming does not shrink the file on disk -- a compressed
// source re-encoded as uncompressed WAV can easily come out larger.
func File(path string, threshold, paddingSeconds float64) (outPath string, trimmed bool) {
	origInfo, err := os.Stat(path)
	if err != nil {
		return path, false
	}

	samples, sampleRate, err := encoder.DecodeFile(path)
	if err != nil {
		log.Warnf("trim: decode %s: %v", filepath.Base(path), err)
		return path, false
	}

	cut := Samples(samples, threshold, paddingSeconds, sampleRate)
	if len(cut) == 0 || len(cut) == len(samples) {
		return path, false
	}

	data, err := encoder.EncodeWAV(cut, sampleRate)
	if err != nil {
		log.Warnf("trim: encode: %v", err)
		return path, false
	}
	if int64(len(data)) >= origInfo.Size() {
		// Trimming exists purely to reduce upload latency; a larger
		// file defeats the point.
		return path, false
	}

	out := trimmedPath(path)
	if err := os.WriteFile(out, data, 0600); err != nil {
		log.Warnf("trim: write %s: %v", filepath.Base(out), err)
		return path, false
	}
	return out, true
}

func trimmedPath(path string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)] + ".trimmed.wav"
}
