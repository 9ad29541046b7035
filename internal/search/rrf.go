package search

import "sort"

// Hit is one retrieval result, before or after fusion.
type Hit struct {
	UUID          string
	Name          string
	Content       string
	NodeType      string
	Score         float64
	MethodSources []string
	Metadata      map[string]any
}

// FuseRRF merges ranked lists with reciprocal rank fusion:
// score(uuid) = sum over lists of 1/(k + rank + 1), ranks 0-based. Ties
// break by the best original score across lists. Each fused hit keeps its
// best original score under metadata["original_search_score"] and the union
// of its method sources. Hits that already carry an original score from an
// earlier fusion keep it, so the method-level score survives re-fusion.
func FuseRRF(lists [][]Hit, k int) []Hit {
	type acc struct {
		hit      Hit
		fused    float64
		bestOrig float64
		methods  map[string]bool
	}
	byUUID := map[string]*acc{}
	order := []string{}
	for _, list := range lists {
		for rank, h := range list {
			a, ok := byUUID[h.UUID]
			if !ok {
				a = &acc{hit: h, bestOrig: originalScore(h), methods: map[string]bool{}}
				byUUID[h.UUID] = a
				order = append(order, h.UUID)
			}
			a.fused += 1.0 / float64(k+rank+1)
			if orig := originalScore(h); orig > a.bestOrig {
				a.bestOrig = orig
			}
			for _, m := range h.MethodSources {
				a.methods[m] = true
			}
		}
	}

	out := make([]Hit, 0, len(order))
	for _, uuid := range order {
		a := byUUID[uuid]
		h := a.hit
		h.Score = a.fused
		h.MethodSources = sortedKeys(a.methods)
		h.Metadata = withOriginalScore(h.Metadata, a.bestOrig)
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		oi := out[i].Metadata["original_search_score"].(float64)
		oj := out[j].Metadata["original_search_score"].(float64)
		return oi > oj
	})
	return out
}

// DedupBestScore merges lists without rank fusion: each uuid keeps its
// single best original score. Used when the RRF reranker is disabled.
func DedupBestScore(lists [][]Hit) []Hit {
	byUUID := map[string]int{}
	out := []Hit{}
	for _, list := range lists {
		for _, h := range list {
			idx, ok := byUUID[h.UUID]
			if !ok {
				orig := originalScore(h)
				h.Metadata = withOriginalScore(h.Metadata, orig)
				h.MethodSources = append([]string(nil), h.MethodSources...)
				byUUID[h.UUID] = len(out)
				out = append(out, h)
				continue
			}
			kept := &out[idx]
			if h.Score > kept.Score {
				kept.Score = h.Score
				kept.Content = h.Content
				kept.Metadata = withOriginalScore(kept.Metadata, originalScore(h))
			}
			kept.MethodSources = mergeMethods(kept.MethodSources, h.MethodSources)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Truncate applies the kind limit while honoring min_results: the list is
// cut at max(limit, minResults).
func Truncate(hits []Hit, limit, minResults int) []Hit {
	keep := limit
	if minResults > keep {
		keep = minResults
	}
	if keep <= 0 || len(hits) <= keep {
		return hits
	}
	return hits[:keep]
}

// originalScore is the raw method score of a hit, surviving fusion rounds
// via metadata.
func originalScore(h Hit) float64 {
	if v, ok := h.Metadata["original_search_score"].(float64); ok {
		return v
	}
	return h.Score
}

func withOriginalScore(meta map[string]any, score float64) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["original_search_score"] = score
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func mergeMethods(a, b []string) []string {
	set := map[string]bool{}
	for _, m := range a {
		set[m] = true
	}
	for _, m := range b {
		set[m] = true
	}
	return sortedKeys(set)
}
