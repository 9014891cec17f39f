package rag

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/embedkit/ragchat/internal/domain"
)

// Retriever owns the current index snapshot. Reads are lock-free; Rebuild
// swaps the whole index atomically so in-flight queries always run against
// one consistent snapshot.
type Retriever struct {
	index  atomic.Pointer[Index]
	logger *zap.Logger
}

// NewRetriever creates a retriever over an empty index.
func NewRetriever(logger *zap.Logger) *Retriever {
	r := &Retriever{logger: logger}
	r.index.Store(BuildIndex(nil))
	return r
}

// Rebuild constructs a brand-new index from the corpus and publishes it.
func (r *Retriever) Rebuild(docs []domain.Document) {
	idx := BuildIndex(docs)
	r.index.Store(idx)
	r.logger.Info("retrieval index built",
		zap.Int("documents", idx.Size()),
		zap.Int("vocabulary", idx.VocabSize()),
	)
}

// Size returns the number of documents in the current snapshot.
func (r *Retriever) Size() int {
	return r.index.Load().Size()
}

// Retrieve queries the current snapshot. A blank query or an empty index
// yields no snippets — retrieval being unavailable is "no context", never
// an error.
func (r *Retriever) Retrieve(query, localeHint string, k int) []domain.Snippet {
	if query == "" {
		return nil
	}
	return r.index.Load().Retrieve(query, localeHint, k)
}
