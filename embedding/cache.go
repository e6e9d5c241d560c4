package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 100

// CachedEmbedder fronts an Encoder with an LRU cache keyed by text. Keys are
// scoped to the encoder's model name so a model change never serves stale
// vectors. Safe for concurrent use; simultaneous misses on the same key may
// encode redundantly but never corrupt the cache.
type CachedEmbedder struct {
	encoder Encoder
	cache   *lru.Cache[string, []float32]
}

// NewCachedEmbedder creates a cache of the given size in front of encoder.
// Non-positive sizes use the default of 100 entries.
func NewCachedEmbedder(encoder Encoder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEmbedder{encoder: encoder, cache: cache}, nil
}

func (c *CachedEmbedder) key(text string) string {
	return c.encoder.Model() + "\x00" + text
}

// Dimension returns the dimensionality of produced vectors
func (c *CachedEmbedder) Dimension() int { return c.encoder.Dimension() }

// Len returns the current number of cached entries
func (c *CachedEmbedder) Len() int { return c.cache.Len() }

// EmbedOne returns the vector for a single text, from cache when present
func (c *CachedEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(c.key(text)); ok {
		return vec, nil
	}
	vectors, err := c.encoder.Encode(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("encoder returned %d vectors for one text", len(vectors))
	}
	c.cache.Add(c.key(text), vectors[0])
	return vectors[0], nil
}

// EmbedMany returns vectors for all texts in the caller's order. Only the
// uncached subset is sent to the encoder, in one batched call.
func (c *CachedEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.key(text)); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		vectors, err := c.encoder.Encode(ctx, missing)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(missing) {
			return nil, fmt.Errorf("encoder returned %d vectors for %d texts", len(vectors), len(missing))
		}
		for j, vec := range vectors {
			out[missingIdx[j]] = vec
			c.cache.Add(c.key(missing[j]), vec)
		}
	}

	return out, nil
}
