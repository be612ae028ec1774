package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/models"
)

const (
	DefaultTopK = 4
	rrfK        = 60 // reciprocal-rank-fusion constant
)

// Mode selects how chunks are ranked against a query.
type Mode string

const (
	ModeVector  Mode = "vector"
	ModeLexical Mode = "lexical"
	ModeHybrid  Mode = "hybrid"
)

func (m Mode) needsVectors() bool { return m == ModeVector || m == ModeHybrid }
func (m Mode) needsLexical() bool { return m == ModeLexical || m == ModeHybrid }

// Embedder is the subset of tools/embedding the index needs.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Options struct {
	Mode Mode
	TopK int
}

// Hit is a ranked chunk.
type Hit struct {
	Chunk models.Chunk
	Score float64
	Rank  int
}

// Index holds one page's chunks and their embeddings. It is immutable once built
// and safe for concurrent queries.
type Index struct {
	mode     Mode
	topK     int
	chunks   []models.Chunk
	vectors  [][]float32
	dim      int
	bleve    bleve.Index
	embedder Embedder
}

// Build embeds every chunk and indexes it. Any failure discards the whole index.
func Build(ctx context.Context, chunks []models.Chunk, embedder Embedder, opts Options) (*Index, error) {
	const op = "build index"
	if len(chunks) == 0 {
		return nil, apperr.New(apperr.KindIndex, op, "no chunks to index")
	}
	opts, err := normalize(opts, embedder)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIndex, op, err)
	}

	var vectors [][]float32
	if opts.Mode.needsVectors() {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err = embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindIndex, op, err)
		}
	}
	ix, err := assemble(chunks, vectors, embedder, opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIndex, op, err)
	}
	return ix, nil
}

func normalize(opts Options, embedder Embedder) (Options, error) {
	if opts.Mode == "" {
		opts.Mode = ModeVector
	}
	switch opts.Mode {
	case ModeVector, ModeLexical, ModeHybrid:
	default:
		return opts, fmt.Errorf("unsupported retrieval mode %q", opts.Mode)
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Mode.needsVectors() && embedder == nil {
		return opts, fmt.Errorf("retrieval mode %q requires an embedder", opts.Mode)
	}
	return opts, nil
}

func assemble(chunks []models.Chunk, vectors [][]float32, embedder Embedder, opts Options) (*Index, error) {
	ix := &Index{
		mode:     opts.Mode,
		topK:     opts.TopK,
		chunks:   append([]models.Chunk(nil), chunks...),
		embedder: embedder,
	}
	if opts.Mode.needsVectors() {
		if len(vectors) != len(chunks) {
			return nil, fmt.Errorf("expected %d vectors, got %d", len(chunks), len(vectors))
		}
		for i, v := range vectors {
			if len(v) == 0 {
				return nil, fmt.Errorf("empty vector for chunk %d", i)
			}
			if i > 0 && len(v) != len(vectors[0]) {
				return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), len(vectors[0]))
			}
		}
		ix.vectors = vectors
		ix.dim = len(vectors[0])
	}
	if opts.Mode.needsLexical() {
		idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create lexical index: %w", err)
		}
		batch := idx.NewBatch()
		for i, c := range chunks {
			if err := batch.Index(strconv.Itoa(i), struct{ Text string }{c.Text}); err != nil {
				return nil, fmt.Errorf("index chunk %d: %w", i, err)
			}
		}
		if err := idx.Batch(batch); err != nil {
			return nil, fmt.Errorf("index chunks: %w", err)
		}
		ix.bleve = idx
	}
	return ix, nil
}

func (ix *Index) Len() int   { return len(ix.chunks) }
func (ix *Index) Mode() Mode { return ix.mode }

// Retrieve returns the k chunks most relevant to query, most relevant first.
// k <= 0 uses the index's default.
func (ix *Index) Retrieve(ctx context.Context, query string, k int) ([]models.Chunk, error) {
	hits, err := ix.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]models.Chunk, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk
	}
	return out, nil
}

// Search ranks every chunk against query and returns the top k hits. Equal scores
// keep chunk order.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	const op = "search index"
	if k <= 0 {
		k = ix.topK
	}
	var scores []float64
	switch ix.mode {
	case ModeVector:
		vec, err := ix.vectorScores(ctx, query)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindIndex, op, err)
		}
		scores = vec
	case ModeLexical:
		lex, err := ix.lexicalScores(query)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindIndex, op, err)
		}
		scores = lex
	case ModeHybrid:
		vec, err := ix.vectorScores(ctx, query)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindIndex, op, err)
		}
		lex, err := ix.lexicalScores(query)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindIndex, op, err)
		}
		scores = fuseRRF(rank(vec), rank(lex))
	}

	order := rank(scores)
	if k > len(order) {
		k = len(order)
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		idx := order[i]
		hits[i] = Hit{Chunk: ix.chunks[idx], Score: scores[idx], Rank: i + 1}
	}
	return hits, nil
}

func (ix *Index) vectorScores(ctx context.Context, query string) ([]float64, error) {
	q, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(q) != ix.dim {
		return nil, fmt.Errorf("query vector has dimension %d, want %d", len(q), ix.dim)
	}
	out := make([]float64, len(ix.vectors))
	for i, v := range ix.vectors {
		out[i] = cosine(q, v)
	}
	return out, nil
}

// lexicalScores runs a BM25 match query. Chunks without a match score zero.
func (ix *Index) lexicalScores(query string) ([]float64, error) {
	out := make([]float64, len(ix.chunks))
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), len(ix.chunks), 0, false)
	res, err := ix.bleve.Search(req)
	if err != nil {
		return nil, err
	}
	for _, hit := range res.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || i < 0 || i >= len(out) {
			continue
		}
		out[i] = hit.Score
	}
	return out, nil
}

// rank returns chunk positions ordered by descending score, ties by position.
func rank(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	return order
}

func fuseRRF(a, b []int) []float64 {
	fused := make([]float64, len(a))
	for r, idx := range a {
		fused[idx] += 1.0 / float64(rrfK+r+1)
	}
	for r, idx := range b {
		fused[idx] += 1.0 / float64(rrfK+r+1)
	}
	return fused
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
