package rag

import "sort"

// fuseRRF combines a semantic and a lexical ranking with reciprocal rank
// fusion. Each list contributes 1/(k + rank + 1) per candidate, rank being
// the 0-based position in that list. Candidates present in both lists sum
// both contributions, so agreement between backends always outranks either
// backend alone at the same positions. A larger k flattens the curve and
// weakens rank-position differences.
func fuseRRF(semantic, lexical []QueryResult, k int) []QueryResult {
	if k <= 0 {
		k = 1
	}

	merged := make(map[string]*QueryResult, len(semantic)+len(lexical))
	order := make([]string, 0, len(semantic)+len(lexical))

	for rank, r := range semantic {
		r.FusedScore = rrfContribution(k, rank)
		r.Provenance = ProvenanceSemantic
		merged[r.ChunkID] = &r
		order = append(order, r.ChunkID)
	}

	for rank, r := range lexical {
		contribution := rrfContribution(k, rank)
		if existing, ok := merged[r.ChunkID]; ok {
			existing.FusedScore += contribution
			existing.LexicalScore = r.LexicalScore
			existing.Provenance = ProvenanceBoth
			// The lexical row carries the full chunk text; prefer it over
			// the payload snippet.
			if len(r.Text) > len(existing.Text) {
				existing.Text = r.Text
			}
			continue
		}
		r.FusedScore = contribution
		r.Provenance = ProvenanceKeyword
		merged[r.ChunkID] = &r
		order = append(order, r.ChunkID)
	}

	fused := make([]QueryResult, 0, len(order))
	for _, id := range order {
		fused = append(fused, *merged[id])
	}
	sortFused(fused)
	return fused
}

func rrfContribution(k, rank int) float64 {
	return 1.0 / float64(k+rank+1)
}

// sortFused orders results by fused score desc, then semantic score desc,
// then document recency desc, then chunk id asc. Every tie-break is
// deterministic so identical queries return identical orderings.
func sortFused(results []QueryResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if a.SemanticScore != b.SemanticScore {
			return a.SemanticScore > b.SemanticScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ChunkID < b.ChunkID
	})
}
