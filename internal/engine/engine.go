// Package engine turns a streaming model call into typed review chunks,
// fans them out to live subscribers, and accumulates them into the final
// structured result.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reviewstream/internal/accumulator"
	"github.com/reviewstream/internal/llm"
	"github.com/reviewstream/pkg/models"
)

// Engine drives one model backend. Safe for concurrent Review calls.
type Engine struct {
	client llm.StreamClient
	accCfg accumulator.Config
}

// New builds an engine over the given transport.
func New(client llm.StreamClient, accCfg accumulator.Config) *Engine {
	return &Engine{client: client, accCfg: accCfg}
}

// Stream is one in-flight review call: a finite sequence of chunks plus the
// accumulated result once the upstream finishes.
type Stream struct {
	bus    *Bus
	engine *Engine

	done   chan struct{}
	mu     sync.Mutex
	chunks []models.ReviewChunk
	err    error
}

// Review starts a streaming call and returns immediately. Subscribers can
// attach at any point; late joiners are replayed the history. Cancelling
// ctx stops the upstream read at the next fragment boundary.
func (e *Engine) Review(ctx context.Context, prompt string) *Stream {
	s := &Stream{
		bus:    NewBus(),
		engine: e,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer s.bus.Close()

		err := e.client.Stream(ctx, prompt, func(ctx context.Context, content string) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			chunk := models.ReviewChunk{
				Type:      classifyFragment(content),
				Text:      content,
				Timestamp: time.Now(),
			}
			s.mu.Lock()
			s.chunks = append(s.chunks, chunk)
			s.mu.Unlock()
			s.bus.Publish(chunk)
			return nil
		})
		if err != nil {
			log.Warn().Err(err).Msg("model stream terminated with error")
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()

	return s
}

// Subscribe attaches a live consumer.
func (s *Stream) Subscribe() <-chan models.ReviewChunk {
	return s.bus.Subscribe()
}

// Wait blocks until the upstream finishes and returns the accumulated
// result. A transport error discards partial findings and is returned
// as-is; the chunk history remains available through Chunks for debugging.
func (s *Stream) Wait() (models.ReviewResult, error) {
	<-s.done

	s.mu.Lock()
	err := s.err
	chunks := make([]models.ReviewChunk, len(s.chunks))
	copy(chunks, s.chunks)
	s.mu.Unlock()

	if err != nil {
		return models.ReviewResult{}, err
	}
	if chunks == nil {
		chunks = []models.ReviewChunk{}
	}

	result, accErr := accumulator.Accumulate(chunks, s.engine.accCfg)
	if accErr != nil {
		return models.ReviewResult{}, accErr
	}
	return result.WithProvenance(s.engine.client.ProviderName(), s.engine.client.ModelName()), nil
}

// Chunks returns the collected history. Only complete after Wait (or after
// the stream's done channel closes).
func (s *Stream) Chunks() []models.ReviewChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ReviewChunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// classifyFragment types a content fragment from its vocabulary. The
// classification is advisory; the accumulator works off the raw text.
func classifyFragment(content string) models.ChunkType {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "security") || strings.Contains(lower, "injection") || strings.Contains(lower, "vulnerab"):
		return models.ChunkSecurity
	case strings.Contains(lower, "performance") || strings.Contains(lower, "alloc") || strings.Contains(lower, "latency"):
		return models.ChunkPerformance
	case strings.Contains(lower, "suggestion") || strings.Contains(lower, "consider"):
		return models.ChunkSuggestion
	case strings.Contains(lower, "{") || strings.Contains(lower, "\""):
		return models.ChunkAnalysis
	default:
		return models.ChunkCommentary
	}
}
