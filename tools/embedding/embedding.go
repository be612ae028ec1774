package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammad-safakhou/pagechat/provider"
)

const DefaultBatchSize = 64

// Embedding batches provider calls and caches vectors by model and text.
type Embedding struct {
	provider  provider.Embedder
	model     string
	batchSize int
	cache     *lru.Cache[string, []float32]
}

// NewEmbedding wraps p. A cacheSize <= 0 disables caching.
func NewEmbedding(p provider.Embedder, model string, batchSize, cacheSize int) (*Embedding, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	e := &Embedding{provider: p, model: model, batchSize: batchSize}
	if cacheSize > 0 {
		cache, err := lru.New[string, []float32](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("init embedding cache: %w", err)
		}
		e.cache = cache
	}
	return e, nil
}

// EmbedDocuments returns one vector per text, in order. Either every text is embedded
// or an error is returned.
func (e *Embedding) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missing := make(map[string][]int)
	var pending []string
	for i, text := range texts {
		if vec, ok := e.lookup(text); ok {
			out[i] = vec
			continue
		}
		if _, seen := missing[text]; !seen {
			pending = append(pending, text)
		}
		missing[text] = append(missing[text], i)
	}

	for start := 0; start < len(pending); start += e.batchSize {
		end := start + e.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		vecs, err := e.provider.Embed(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embedding batch: expected %d vectors, got %d", len(batch), len(vecs))
		}
		for j, text := range batch {
			e.store(text, vecs[j])
			for _, idx := range missing[text] {
				out[idx] = vecs[j]
			}
		}
	}
	return out, nil
}

func (e *Embedding) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Embedding) key(text string) string {
	sum := sha256.Sum256([]byte(e.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (e *Embedding) lookup(text string) ([]float32, bool) {
	if e.cache == nil {
		return nil, false
	}
	return e.cache.Get(e.key(text))
}

func (e *Embedding) store(text string, vec []float32) {
	if e.cache != nil {
		e.cache.Add(e.key(text), vec)
	}
}
