package embed

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xhad/ask/internal/types"
)

// ErrEmbedding marks a provider failure that survived retrying. Permanent
// provider errors wrap it immediately; transient ones only after the
// attempt budget is spent.
var ErrEmbedding = errors.New("embedding provider failure")

type Config struct {
	MaxAttempts int           // total attempts per batch, including the first
	BaseDelay   time.Duration // backoff delay before the second attempt
	RateLimit   float64       // provider calls per second
}

// Service fronts an embedding provider with a process-lifetime cache,
// request batching and bounded retry. The cache never evicts: chunk
// volume is bounded by what a single process ingests.
type Service struct {
	config   Config
	provider types.Embedder
	limiter  *rate.Limiter

	mu    sync.RWMutex
	cache map[string][]float32
}

func NewService(provider types.Embedder, config Config) *Service {
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 4
	}
	if config.BaseDelay == 0 {
		config.BaseDelay = 500 * time.Millisecond
	}
	if config.RateLimit == 0 {
		config.RateLimit = 4.0
	}

	return &Service{
		config:   config,
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		cache:    make(map[string][]float32),
	}
}

// Vector embeds a single text, hitting the cache when possible.
func (s *Service) Vector(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.Vectors(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Vectors embeds every text, returning one vector per input in input
// order. Cached entries are reused; the rest are fetched from the
// provider in batches no larger than the provider's limit. Duplicate
// inputs cost at most one provider embedding.
func (s *Service) Vectors(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	// Partition into cached entries and distinct texts still to fetch.
	positions := make(map[string][]int)
	var pendingKeys []string
	var pendingTexts []string

	s.mu.RLock()
	for i, text := range texts {
		key := cacheKey(text)
		keys[i] = key
		if vec, ok := s.cache[key]; ok {
			results[i] = vec
			continue
		}
		if _, seen := positions[key]; !seen {
			pendingKeys = append(pendingKeys, key)
			pendingTexts = append(pendingTexts, text)
		}
		positions[key] = append(positions[key], i)
	}
	s.mu.RUnlock()

	if len(pendingTexts) == 0 {
		return results, nil
	}

	maxBatch := s.provider.MaxBatchSize()
	if maxBatch <= 0 {
		maxBatch = len(pendingTexts)
	}

	for from := 0; from < len(pendingTexts); from += maxBatch {
		to := from + maxBatch
		if to > len(pendingTexts) {
			to = len(pendingTexts)
		}

		vectors, err := s.embedWithRetry(ctx, pendingTexts[from:to])
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		for i, vec := range vectors {
			key := pendingKeys[from+i]
			s.cache[key] = vec
			for _, pos := range positions[key] {
				results[pos] = vec
			}
		}
		s.mu.Unlock()
	}

	return results, nil
}

// CacheSize reports the number of cached embeddings.
func (s *Service) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// ProbeDimension embeds a short probe text to learn the provider's
// output dimension, falling back to fallbackDim if the probe stalls or
// fails within timeout.
func (s *Service) ProbeDimension(ctx context.Context, timeout time.Duration, fallbackDim int) int {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vec, err := s.Vector(probeCtx, "dimension probe")
	if err != nil || len(vec) == 0 {
		return fallbackDim
	}
	return len(vec)
}

func (s *Service) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt < s.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.config.BaseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		vectors, err := s.provider.EmbedBatch(ctx, batch)
		if err == nil {
			if len(vectors) != len(batch) {
				return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(vectors), len(batch))
			}
			return vectors, nil
		}

		if !isTransient(err) {
			return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrEmbedding, s.config.MaxAttempts, lastErr)
}

// cacheKey hashes the normalized text, so writes are idempotent
// overwrites and a duplicated concurrent fetch is harmless.
func cacheKey(text string) string {
	sum := md5.Sum([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// isTransient reports whether a provider error is worth retrying: rate
// limiting, 5xx responses and network hiccups are; everything else is
// treated as permanent.
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit", "too many requests",
		"500", "502", "503", "504",
		"timeout", "timed out", "temporarily",
		"connection refused", "connection reset", "unexpected eof",
		"service unavailable", "overloaded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
