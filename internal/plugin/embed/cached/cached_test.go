package cached

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adrianwedd/ltm-service/internal/model"
)

type countingEmbedder struct {
	calls    int
	failures int
}

func (e *countingEmbedder) ModelName() string { return "counting" }
func (e *countingEmbedder) Dimension() int    { return 2 }

func (e *countingEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.calls <= e.failures {
		return nil, errors.New("transient failure")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func TestCacheAvoidsRepeatEmbedding(t *testing.T) {
	inner := &countingEmbedder{}
	e, err := Wrap(inner, 16)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := e.EmbedTexts(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	second, err := e.EmbedTexts(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
	require.Equal(t, first, second)

	// A partially cached batch only embeds the misses.
	_, err = e.EmbedTexts(ctx, []string{"alpha", "gamma"})
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	inner := &countingEmbedder{failures: 2}
	e, err := Wrap(inner, 16)
	require.NoError(t, err)
	e.initialInterval = time.Millisecond

	vecs, err := e.EmbedTexts(context.Background(), []string{"alpha"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.Equal(t, 3, inner.calls)
}

func TestRetryExhaustionSurfacesEmbedUnavailable(t *testing.T) {
	inner := &countingEmbedder{failures: 10}
	e, err := Wrap(inner, 16)
	require.NoError(t, err)
	e.initialInterval = time.Millisecond

	_, err = e.EmbedTexts(context.Background(), []string{"alpha"})
	var unavailable *model.EmbedUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Equal(t, 3, inner.calls)
}

func TestCancellationAbortsRetry(t *testing.T) {
	inner := &countingEmbedder{failures: 10}
	e, err := Wrap(inner, 16)
	require.NoError(t, err)
	e.initialInterval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = e.EmbedTexts(ctx, []string{"alpha"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, inner.calls)
}

func TestLRUEviction(t *testing.T) {
	inner := &countingEmbedder{}
	e, err := Wrap(inner, 2)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.EmbedTexts(ctx, []string{"a"})
	require.NoError(t, err)
	_, err = e.EmbedTexts(ctx, []string{"b"})
	require.NoError(t, err)
	_, err = e.EmbedTexts(ctx, []string{"c"})
	require.NoError(t, err)
	require.Equal(t, 3, inner.calls)

	// "a" was least recently used and has been evicted.
	_, err = e.EmbedTexts(ctx, []string{"a"})
	require.NoError(t, err)
	require.Equal(t, 4, inner.calls)

	// "c" is still resident.
	_, err = e.EmbedTexts(ctx, []string{"c"})
	require.NoError(t, err)
	require.Equal(t, 4, inner.calls)
}
