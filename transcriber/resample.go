package transcriber

// Resample converts mono 16-bit PCM between sample rates using linear
// interpolation. Speech fed to a transcription model does not need a
// windowed-sinc kernel; linear is inaudible at these rates and fast
// enough to run single-shot on a whole recording.
func Resample(in []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(in) == 0 || fromRate <= 0 || toRate <= 0 {
		return in
	}

	outLen := int(int64(len(in)) * int64(toRate) / int64(fromRate))
	if outLen == 0 {
		return nil
	}

	out := make([]int16, outLen)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(in[idx])
		b := float64(in[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}

// pcmBytes converts samples to the little-endian wire form both
// transports send.
func pcmBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}
