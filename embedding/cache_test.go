package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncoder returns a distinct vector per text and counts encode calls
type fakeEncoder struct {
	model string
	calls int
	texts []string
	err   error
}

func (f *fakeEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), float32(i)}
	}
	return out, nil
}

func (f *fakeEncoder) Model() string  { return f.model }
func (f *fakeEncoder) Dimension() int { return 2 }

func TestEmbedOneCachesRepeats(t *testing.T) {
	enc := &fakeEncoder{model: "m1"}
	cached, err := NewCachedEmbedder(enc, 10)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := cached.EmbedOne(ctx, "임금은 월 300만원으로 한다")
	require.NoError(t, err)

	second, err := cached.EmbedOne(ctx, "임금은 월 300만원으로 한다")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, enc.calls)
	assert.Equal(t, 1, cached.Len())
}

func TestEmbedManyOnlyEncodesMisses(t *testing.T) {
	enc := &fakeEncoder{model: "m1"}
	cached, err := NewCachedEmbedder(enc, 10)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = cached.EmbedOne(ctx, "가")
	require.NoError(t, err)

	vectors, err := cached.EmbedMany(ctx, []string{"가", "나", "다"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, vec := range vectors {
		assert.NotNil(t, vec)
	}

	// second call encoded only the two misses
	assert.Equal(t, 2, enc.calls)
	assert.Equal(t, []string{"가", "나", "다"}, enc.texts)
	assert.Equal(t, 3, cached.Len())
}

func TestEmbedManyPreservesOrder(t *testing.T) {
	enc := &fakeEncoder{model: "m1"}
	cached, err := NewCachedEmbedder(enc, 10)
	require.NoError(t, err)

	texts := []string{"aa", "bbbb", "cccccc"}
	vectors, err := cached.EmbedMany(context.Background(), texts)
	require.NoError(t, err)
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vectors[i][0])
	}
}

func TestEvictionBoundsCache(t *testing.T) {
	enc := &fakeEncoder{model: "m1"}
	cached, err := NewCachedEmbedder(enc, 2)
	require.NoError(t, err)

	ctx := context.Background()
	for _, text := range []string{"하나", "둘", "셋"} {
		_, err := cached.EmbedOne(ctx, text)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cached.Len())

	// oldest entry was evicted, so it re-encodes
	calls := enc.calls
	_, err = cached.EmbedOne(ctx, "하나")
	require.NoError(t, err)
	assert.Equal(t, calls+1, enc.calls)
}

func TestEncoderErrorPropagates(t *testing.T) {
	enc := &fakeEncoder{model: "m1", err: errors.New("quota exceeded")}
	cached, err := NewCachedEmbedder(enc, 10)
	require.NoError(t, err)

	_, err = cached.EmbedOne(context.Background(), "가나다")
	require.Error(t, err)
	assert.Equal(t, 0, cached.Len())
}
