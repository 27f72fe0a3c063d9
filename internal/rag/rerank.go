package rag

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// Reranker rescores candidate texts against a query. Implementations may
// call out to a cross-encoder; scores only need to be comparable within one
// call.
type Reranker interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// TokenOverlapReranker is a local, deterministic reranker: the score is the
// fraction of query tokens that appear in the candidate text. It needs no
// network and serves as the default cross-scorer.
type TokenOverlapReranker struct{}

// Score implements Reranker.
func (TokenOverlapReranker) Score(_ context.Context, query string, texts []string) ([]float64, error) {
	queryTokens := Tokenize(query)
	scores := make([]float64, len(texts))
	if len(queryTokens) == 0 {
		return scores, nil
	}

	for i, text := range texts {
		seen := make(map[string]bool)
		for _, tok := range Tokenize(text) {
			seen[tok] = true
		}
		matched := 0
		for _, tok := range queryTokens {
			if seen[tok] {
				matched++
			}
		}
		scores[i] = float64(matched) / float64(len(queryTokens))
	}
	return scores, nil
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "to": true, "was": true, "were": true,
	"will": true, "with": true, "who": true, "what": true, "when": true,
	"where": true, "which": true, "how": true,
}

// Tokenize lowercases text, splits on non-alphanumeric runes and drops
// stopwords and single characters. Shared by the lexical search path and
// the overlap reranker so both sides agree on what a token is.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	seen := make(map[string]bool)
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	return tokens
}

// rerankTop rescores the first n results and reorders that prefix by rerank
// score. The suffix keeps its fused order. A reranker failure leaves the
// fused order untouched.
func rerankTop(ctx context.Context, reranker Reranker, query string, results []QueryResult, n int) []QueryResult {
	if reranker == nil || len(results) == 0 {
		return results
	}
	if n > len(results) {
		n = len(results)
	}

	texts := make([]string, n)
	for i := 0; i < n; i++ {
		texts[i] = results[i].Text
	}

	scores, err := reranker.Score(ctx, query, texts)
	if err != nil || len(scores) != n {
		return results
	}

	head := make([]QueryResult, n)
	copy(head, results[:n])
	for i := range head {
		head[i].RerankScore = scores[i]
	}
	sort.SliceStable(head, func(i, j int) bool {
		if head[i].RerankScore != head[j].RerankScore {
			return head[i].RerankScore > head[j].RerankScore
		}
		if head[i].FusedScore != head[j].FusedScore {
			return head[i].FusedScore > head[j].FusedScore
		}
		return head[i].ChunkID < head[j].ChunkID
	})

	out := make([]QueryResult, 0, len(results))
	out = append(out, head...)
	out = append(out, results[n:]...)
	return out
}
