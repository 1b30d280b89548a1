package audio

// Resample converts mono 16-bit samples from srcRate to dstRate using linear
// interpolation. The input is returned unchanged when the rates match or
// either rate is non-positive.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}

	out := make([]int16, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// Downmix averages interleaved multi-channel samples into mono. Uses int32
// arithmetic to avoid overflow. A trailing partial frame is ignored.
func Downmix(interleaved []int16, channels int) []int16 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(interleaved[i*channels+ch])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

// Upmix duplicates each mono sample across channels, producing interleaved
// output for devices that refuse mono playback.
func Upmix(mono []int16, channels int) []int16 {
	if channels <= 1 {
		return mono
	}
	out := make([]int16, len(mono)*channels)
	for i, s := range mono {
		for ch := range channels {
			out[i*channels+ch] = s
		}
	}
	return out
}
