package audio

// Resample converts mono float samples between sample rates using
// linear interpolation. It is meant for the fixed speech rates of the
// live path, not for high-fidelity music content.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return nil
	}
	if fromRate == toRate {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen == 0 {
		return nil
	}

	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		if idx+1 < len(samples) {
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		} else {
			out[i] = samples[idx]
		}
	}
	return out
}

// ResamplePCM16 converts raw 16-bit PCM between sample rates. Malformed
// input yields a DecodeError.
func ResamplePCM16(data []byte, fromRate, toRate int) ([]byte, error) {
	samples, err := DecodePCM16(data)
	if err != nil {
		return nil, err
	}
	return EncodePCM16(Resample(samples, fromRate, toRate)), nil
}
