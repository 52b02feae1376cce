// Package audio provides PCM buffers, assembly, effects and transcoding for
// synthesized speech.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/tts-job-service/internal/core"
)

// DefaultSampleRate is the system-wide output sample rate in Hz.
const DefaultSampleRate = 24000

const bytesPerSample = 2

// ErrOddPCMLength indicates raw s16le data that is not sample aligned.
var ErrOddPCMLength = errors.New("pcm data length must be even (16-bit samples)")

// PCM is a mono buffer of signed 16-bit samples.
type PCM struct {
	SampleRate int
	Samples    []int16
}

// DecodeS16LE converts raw little-endian 16-bit mono data into a PCM buffer.
func DecodeS16LE(data []byte, sampleRate int) (PCM, error) {
	if len(data)%bytesPerSample != 0 {
		return PCM{}, fmt.Errorf("%w: got %d bytes", ErrOddPCMLength, len(data))
	}

	samples := make([]int16, len(data)/bytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*bytesPerSample:]))
	}

	return PCM{SampleRate: sampleRate, Samples: samples}, nil
}

// S16LE encodes the buffer as raw little-endian 16-bit data.
func (p PCM) S16LE() []byte {
	out := make([]byte, len(p.Samples)*bytesPerSample)
	for i, sample := range p.Samples {
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(sample))
	}

	return out
}

// Duration returns the playback length of the buffer.
func (p PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}

	return time.Duration(len(p.Samples)) * time.Second / time.Duration(p.SampleRate)
}

// Concat joins buffers in order without crossfade or inserted silence.
// All buffers must share one sample rate.
func Concat(buffers []PCM) (PCM, error) {
	if len(buffers) == 0 {
		return PCM{}, nil
	}

	sampleRate := buffers[0].SampleRate
	total := 0

	for i, buffer := range buffers {
		if buffer.SampleRate != sampleRate {
			return PCM{}, fmt.Errorf(
				"%w: buffer %d is %d Hz, expected %d Hz",
				core.ErrSampleRateMismatch, i+1, buffer.SampleRate, sampleRate,
			)
		}

		total += len(buffer.Samples)
	}

	samples := make([]int16, 0, total)
	for _, buffer := range buffers {
		samples = append(samples, buffer.Samples...)
	}

	return PCM{SampleRate: sampleRate, Samples: samples}, nil
}
