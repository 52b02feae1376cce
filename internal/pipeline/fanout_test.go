package pipeline_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/tts-job-service/internal/core"
	"github.com/book-expert/tts-job-service/internal/pipeline"
	"github.com/book-expert/tts-job-service/internal/tts/audio"
	"github.com/book-expert/tts-job-service/internal/voices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSynthesis = errors.New("synthesis exploded")

// fakeSynth encodes the chunk text as a single sample so ordering is observable.
type fakeSynth struct {
	delay     func() time.Duration
	failOn    string
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	calls     atomic.Int32
}

func (f *fakeSynth) Synthesize(ctx context.Context, _ voices.Entry, text string, _ core.ResolvedOptions) (audio.PCM, error) {
	f.calls.Add(1)

	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		seen := f.maxFlight.Load()
		if current <= seen || f.maxFlight.CompareAndSwap(seen, current) {
			break
		}
	}

	if f.delay != nil {
		select {
		case <-time.After(f.delay()):
		case <-ctx.Done():
			return audio.PCM{}, ctx.Err()
		}
	}

	if text == f.failOn {
		return audio.PCM{}, errSynthesis
	}

	value, err := strconv.Atoi(text)
	if err != nil {
		return audio.PCM{}, err
	}

	return audio.PCM{SampleRate: audio.DefaultSampleRate, Samples: []int16{int16(value)}}, nil
}

type countingObserver struct {
	mu       sync.Mutex
	ok       int
	failures int
}

func (c *countingObserver) ObserveChunk(_ time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.failures++

		return
	}

	c.ok++
}

func numberedChunks(n int) []string {
	chunks := make([]string, n)
	for i := range chunks {
		chunks[i] = strconv.Itoa(i + 1)
	}

	return chunks
}

func TestSynthesizeChunks_PreservesOrderUnderRandomDelays(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{
		delay: func() time.Duration { return time.Duration(rand.IntN(15)) * time.Millisecond },
	}
	observer := &countingObserver{}

	results, err := pipeline.SynthesizeChunks(
		context.Background(), synth, voices.Entry{}, numberedChunks(12), core.ResolvedOptions{}, 4, observer,
	)
	require.NoError(t, err)
	require.Len(t, results, 12)

	for i, pcm := range results {
		assert.Equal(t, []int16{int16(i + 1)}, pcm.Samples, "chunk %d out of order", i+1)
	}

	assert.Equal(t, 12, observer.ok)
	assert.Zero(t, observer.failures)
}

func TestSynthesizeChunks_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{delay: func() time.Duration { return 5 * time.Millisecond }}

	_, err := pipeline.SynthesizeChunks(
		context.Background(), synth, voices.Entry{}, numberedChunks(20), core.ResolvedOptions{}, 4, nil,
	)
	require.NoError(t, err)

	assert.LessOrEqual(t, synth.maxFlight.Load(), int32(4))
	assert.Equal(t, int32(20), synth.calls.Load())
}

func TestSynthesizeChunks_ReportsFailingChunkIndex(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{failOn: "3"}

	results, err := pipeline.SynthesizeChunks(
		context.Background(), synth, voices.Entry{}, numberedChunks(5), core.ResolvedOptions{}, 1, nil,
	)
	require.Error(t, err)
	assert.Nil(t, results)

	var chunkErr *core.ChunkSynthesisError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 3, chunkErr.Index)
	require.ErrorIs(t, err, errSynthesis)
	assert.Contains(t, err.Error(), "chunk 3 failed")
}

func TestSynthesizeChunks_Empty(t *testing.T) {
	t.Parallel()

	results, err := pipeline.SynthesizeChunks(
		context.Background(), &fakeSynth{}, voices.Entry{}, nil, core.ResolvedOptions{}, 4, nil,
	)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSynthesizeChunks_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	synth := &fakeSynth{}

	_, err := pipeline.SynthesizeChunks(ctx, synth, voices.Entry{}, numberedChunks(3), core.ResolvedOptions{}, 2, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, synth.calls.Load())
}
