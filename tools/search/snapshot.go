package search

import (
	"github.com/mohammad-safakhou/pagechat/internal/apperr"
	"github.com/mohammad-safakhou/pagechat/models"
)

// Snapshot is the serialisable form of an Index.
type Snapshot struct {
	Mode    Mode           `json:"mode"`
	TopK    int            `json:"top_k"`
	Chunks  []models.Chunk `json:"chunks"`
	Vectors [][]float32    `json:"vectors,omitempty"`
}

func (ix *Index) Snapshot() Snapshot {
	return Snapshot{Mode: ix.mode, TopK: ix.topK, Chunks: ix.chunks, Vectors: ix.vectors}
}

// Restore rebuilds an index from a snapshot without re-embedding its chunks.
func Restore(snap Snapshot, embedder Embedder) (*Index, error) {
	const op = "restore index"
	if len(snap.Chunks) == 0 {
		return nil, apperr.New(apperr.KindIndex, op, "snapshot has no chunks")
	}
	opts, err := normalize(Options{Mode: snap.Mode, TopK: snap.TopK}, embedder)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIndex, op, err)
	}
	ix, err := assemble(snap.Chunks, snap.Vectors, embedder, opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIndex, op, err)
	}
	return ix, nil
}
