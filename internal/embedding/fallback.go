package embedding

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/whisper/matchmaker/internal/metrics"
	"github.com/whisper/matchmaker/internal/pkg/errs"
	"github.com/whisper/matchmaker/internal/pkg/logx"
)

// Fallback never fails: when next errors it returns a random unit vector of
// the configured width so that the caller can proceed. Similarity scores
// computed from such vectors are meaningless but harmless.
type Fallback struct {
	next Embedder
	dims int
	log  zerolog.Logger
}

// NewFallback wraps next. dims <= 0 selects DefaultDimensions.
func NewFallback(next Embedder, dims int) *Fallback {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Fallback{next: next, dims: dims, log: logx.Component("embedding")}
}

// Embed implements Embedder.
func (f *Fallback) Embed(ctx context.Context, text string) ([]float64, error) {
	if f.next != nil {
		vec, err := f.next.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		f.log.Warn().Err(err).Str("code", errs.CodeEmbeddingUnavailable).Msg("using random fallback embedding")
	} else {
		f.log.Warn().Str("code", errs.CodeEmbeddingUnavailable).Msg("no embedding model configured, using random fallback")
	}

	metrics.EmbeddingFallbacks.Inc()
	return RandomUnit(f.dims), nil
}
