// Package pipeline runs the synthesis pipeline for a single job: chunking,
// bounded parallel synthesis, assembly, transcoding and storage.
package pipeline

import (
	"context"
	"time"

	"github.com/book-expert/tts-job-service/internal/core"
	"github.com/book-expert/tts-job-service/internal/tts/audio"
	"github.com/book-expert/tts-job-service/internal/voices"
	"golang.org/x/sync/errgroup"
)

// DefaultFanout is the maximum number of chunks of one job synthesized at once.
const DefaultFanout = 4

// Synthesizer turns one chunk of text into PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, voice voices.Entry, text string, opts core.ResolvedOptions) (audio.PCM, error)
}

// ChunkObserver is told the outcome of every chunk synthesis.
type ChunkObserver interface {
	ObserveChunk(elapsed time.Duration, err error)
}

// SynthesizeChunks synthesizes chunks with at most min(len(chunks), limit)
// running at once and returns their PCM in chunk order. The first failure
// cancels the remaining work and is returned as *core.ChunkSynthesisError;
// no partial results are returned.
func SynthesizeChunks(
	ctx context.Context,
	synth Synthesizer,
	voice voices.Entry,
	chunks []string,
	opts core.ResolvedOptions,
	limit int,
	observer ChunkObserver,
) ([]audio.PCM, error) {
	if len(chunks) == 0 {
		return []audio.PCM{}, nil
	}

	if limit <= 0 {
		limit = DefaultFanout
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(min(len(chunks), limit))

	results := make([]audio.PCM, len(chunks))

	for index, chunk := range chunks {
		group.Go(func() error {
			err := groupCtx.Err()
			if err != nil {
				return &core.ChunkSynthesisError{Index: index + 1, Err: err}
			}

			started := time.Now()
			pcm, err := synth.Synthesize(groupCtx, voice, chunk, opts)

			if observer != nil {
				observer.ObserveChunk(time.Since(started), err)
			}

			if err != nil {
				return &core.ChunkSynthesisError{Index: index + 1, Err: err}
			}

			results[index] = pcm

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}

	return results, nil
}
