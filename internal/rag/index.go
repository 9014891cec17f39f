// Package rag implements the in-memory TF-IDF retrieval index and the
// corpus loader feeding it.
package rag

import (
	"container/heap"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/embedkit/ragchat/internal/domain"
)

// Index is an immutable term-weighted vector space over one corpus
// snapshot. Build once, query concurrently, never mutate.
type Index struct {
	docs    []domain.Document
	vocab   map[string]int
	vectors []map[int]float64 // sparse tf-idf weights per document
	norms   []float64
}

// BuildIndex tokenizes the corpus, assigns vocabulary indices in
// first-seen order, and precomputes tf-idf vectors with their L2 norms.
// Deterministic for the same corpus in the same order.
func BuildIndex(docs []domain.Document) *Index {
	idx := &Index{
		docs:  docs,
		vocab: make(map[string]int),
	}

	tokenized := make([][]string, len(docs))
	for i, d := range docs {
		tokenized[i] = Tokenize(d.Text)
		for _, tok := range tokenized[i] {
			if _, ok := idx.vocab[tok]; !ok {
				idx.vocab[tok] = len(idx.vocab)
			}
		}
	}

	n := len(docs)
	df := make([]int, len(idx.vocab))
	for _, toks := range tokenized {
		seen := make(map[int]struct{}, len(toks))
		for _, tok := range toks {
			ti := idx.vocab[tok]
			if _, ok := seen[ti]; !ok {
				seen[ti] = struct{}{}
				df[ti]++
			}
		}
	}

	// Smoothed idf: ln((N+1)/(df+1)) + 1.
	idf := make([]float64, len(df))
	for i, f := range df {
		idf[i] = math.Log(float64(n+1)/float64(f+1)) + 1
	}

	idx.vectors = make([]map[int]float64, n)
	idx.norms = make([]float64, n)
	for i, toks := range tokenized {
		vec := make(map[int]float64)
		for _, tok := range toks {
			vec[idx.vocab[tok]]++
		}
		var sum float64
		for ti, tf := range vec {
			w := tf * idf[ti]
			vec[ti] = w
			sum += w * w
		}
		idx.vectors[i] = vec
		idx.norms[i] = math.Sqrt(sum)
	}

	return idx
}

// Size returns the number of indexed documents.
func (x *Index) Size() int { return len(x.docs) }

// VocabSize returns the vector dimensionality.
func (x *Index) VocabSize() int { return len(x.vocab) }

// Retrieve returns up to k snippets ranked by cosine similarity against
// the query, with a 0.85 multiplier applied to documents whose locale
// differs from a non-empty localeHint. Scores <= 0 are dropped; ties keep
// the earlier-indexed document.
func (x *Index) Retrieve(query, localeHint string, k int) []domain.Snippet {
	if len(x.docs) == 0 || k <= 0 {
		return nil
	}

	qvec := make(map[int]float64)
	for _, tok := range Tokenize(query) {
		if ti, ok := x.vocab[tok]; ok {
			qvec[ti]++
		}
	}
	var qsum float64
	for _, v := range qvec {
		qsum += v * v
	}
	qnorm := math.Sqrt(qsum)
	if qnorm == 0 {
		return nil
	}

	top := &topK{limit: k}
	heap.Init(top)
	for i := range x.docs {
		score := cosine(qvec, qnorm, x.vectors[i], x.norms[i])
		if localeHint != "" && !strings.EqualFold(localeHint, x.docs[i].Locale) {
			score *= localePenalty
		}
		if score <= 0 {
			continue
		}
		top.offer(i, score)
	}

	sort.Slice(top.items, func(a, b int) bool {
		if top.items[a].score != top.items[b].score {
			return top.items[a].score > top.items[b].score
		}
		return top.items[a].doc < top.items[b].doc
	})

	out := make([]domain.Snippet, 0, len(top.items))
	for _, it := range top.items {
		d := x.docs[it.doc]
		out = append(out, domain.Snippet{Title: d.Title, URL: d.URL, Text: d.Text, Score: it.score})
	}
	return out
}

// localePenalty shaves scores of documents in a different locale than the
// query hint so same-locale matches win near-ties.
const localePenalty = 0.85

func cosine(q map[int]float64, qnorm float64, d map[int]float64, dnorm float64) float64 {
	if qnorm == 0 || dnorm == 0 {
		return 0
	}
	var dot float64
	for ti, qv := range q {
		if dv, ok := d[ti]; ok {
			dot += qv * dv
		}
	}
	return dot / (qnorm * dnorm)
}

// scored pairs a document index with its similarity score.
type scored struct {
	doc   int
	score float64
}

// topK is a bounded min-heap over scores. A candidate evicts the current
// minimum only when strictly greater, so equal-score candidates keep the
// earlier-inserted document.
type topK struct {
	items []scored
	limit int
}

func (h *topK) Len() int { return len(h.items) }

func (h *topK) Less(a, b int) bool {
	if h.items[a].score != h.items[b].score {
		return h.items[a].score < h.items[b].score
	}
	// On equal scores the later document sits closer to the root and is
	// evicted first.
	return h.items[a].doc > h.items[b].doc
}

func (h *topK) Swap(a, b int) { h.items[a], h.items[b] = h.items[b], h.items[a] }

func (h *topK) Push(v any) { h.items = append(h.items, v.(scored)) }

func (h *topK) Pop() any {
	last := h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	return last
}

func (h *topK) offer(doc int, score float64) {
	if len(h.items) < h.limit {
		heap.Push(h, scored{doc: doc, score: score})
		return
	}
	if score > h.items[0].score {
		h.items[0] = scored{doc: doc, score: score}
		heap.Fix(h, 0)
	}
}

// Tokenize lower-cases text, keeps ASCII alphanumerics and Hangul
// syllables, treats everything else as whitespace, and drops
// single-character tokens.
func Tokenize(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', domain.IsHangul(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	out := fields[:0]
	for _, tok := range fields {
		if utf8.RuneCountInString(tok) > 1 {
			out = append(out, tok)
		}
	}
	return out
}
