package indexer

import "sort"

// HitList records where each term occurs, per document section.
type HitList struct {
	hits  map[string]map[string][]int
	total int
}

// NewHitList returns an empty hit list.
func NewHitList() *HitList {
	return &HitList{hits: make(map[string]map[string][]int)}
}

// Add records term at position within section.
func (h *HitList) Add(section, term string, position int) {
	words, ok := h.hits[section]
	if !ok {
		words = make(map[string][]int)
		h.hits[section] = words
	}
	words[term] = append(words[term], position)
	h.total++
}

// Len returns the number of recorded hits.
func (h *HitList) Len() int {
	return h.total
}

// Terms returns the distinct terms across all sections, sorted.
func (h *HitList) Terms() []string {
	seen := make(map[string]struct{})
	for _, words := range h.hits {
		for term := range words {
			seen[term] = struct{}{}
		}
	}
	terms := make([]string, 0, len(seen))
	for term := range seen {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Data renders the hit list as entity data:
//
//	{"hits": N, "sections": {section: {term: [positions...]}}}
func (h *HitList) Data() map[string]any {
	sections := make(map[string]any, len(h.hits))
	for section, words := range h.hits {
		terms := make(map[string]any, len(words))
		for term, positions := range words {
			list := make([]any, len(positions))
			for i, p := range positions {
				list[i] = p
			}
			terms[term] = list
		}
		sections[section] = terms
	}
	return map[string]any{
		"hits":     h.total,
		"sections": sections,
	}
}
