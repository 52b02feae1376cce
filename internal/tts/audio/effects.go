package audio

import "math"

// normalizePeak is the target peak amplitude after normalization (about -1 dBFS).
const normalizePeak = 0.89

// Effects are post-synthesis adjustments applied to a PCM buffer.
type Effects struct {
	Volume    float64
	Normalize bool
}

// Apply returns a new buffer with normalization and then volume applied.
// Samples are clipped to the 16-bit range.
func (e Effects) Apply(pcm PCM) PCM {
	gain := 1.0

	if e.Normalize {
		peak := peakAmplitude(pcm.Samples)
		if peak > 0 {
			gain = normalizePeak * math.MaxInt16 / float64(peak)
		}
	}

	gain *= e.Volume

	if gain == 1.0 {
		return pcm
	}

	out := make([]int16, len(pcm.Samples))
	for i, sample := range pcm.Samples {
		out[i] = clip16(float64(sample) * gain)
	}

	return PCM{SampleRate: pcm.SampleRate, Samples: out}
}

func peakAmplitude(samples []int16) int {
	peak := 0

	for _, sample := range samples {
		magnitude := int(sample)
		if magnitude < 0 {
			magnitude = -magnitude
		}

		if magnitude > peak {
			peak = magnitude
		}
	}

	return peak
}

func clip16(value float64) int16 {
	switch {
	case value > math.MaxInt16:
		return math.MaxInt16
	case value < math.MinInt16:
		return math.MinInt16
	default:
		return int16(math.Round(value))
	}
}
