// Package search implements the Search Engine (spec.md §4.7):
// tokenization, synonym expansion, inverted-index candidate gathering
// with linear-scan fallback, additive scoring, pagination, and a
// query-result cache.
package search

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"iconserve/internal/model"
)

var tokenSplitRe = regexp.MustCompile(`[^a-z0-9]+`)

// Tokenize lowercases text, splits on non-[a-z0-9], and drops tokens
// shorter than 2 characters.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	parts := tokenSplitRe.Split(lower, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

// ExpandSynonyms returns the union of tokens and their synonyms,
// alongside the set of tokens that are synonym-only (not among the
// original tokens) for scoring purposes.
func ExpandSynonyms(tokens []string, syn model.Synonyms) (expanded []string, synonymOnly map[string]bool) {
	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		seen[t] = true
	}
	expanded = append(expanded, tokens...)
	synonymOnly = make(map[string]bool)
	if syn == nil {
		return expanded, synonymOnly
	}
	for _, t := range tokens {
		for _, s := range syn[t] {
			if !seen[s] {
				seen[s] = true
				expanded = append(expanded, s)
				synonymOnly[s] = true
			}
		}
	}
	return expanded, synonymOnly
}

// Method reports which code path produced a result set.
type Method string

const (
	MethodInvertedIndex Method = "inverted_index"
	MethodLinear        Method = "linear"
	MethodCached        Method = "cached"
)

// Scored is one candidate with its computed score.
type Scored struct {
	Icon  model.Icon
	Score float64
}

// Query describes a search request, already validated by internal/validate.
type Query struct {
	Raw      string // trimmed, lowercased
	Source   string
	Category string
}

// Run executes a full search: candidate gathering (inverted index when
// available, else linear scan), scoring, and descending sort. It does
// not paginate or consult the result cache — callers (internal/api or
// the ResultCache wrapper) handle that.
func Run(idx *model.Index, inv *model.InvertedIndex, syn model.Synonyms, q Query) ([]Scored, Method) {
	tokens := Tokenize(q.Raw)
	expanded, synonymOnly := ExpandSynonyms(tokens, syn)

	var candidates map[string]model.Icon
	var method Method
	if inv != nil {
		candidates, method = gatherFromInverted(idx, inv, q, expanded)
	} else {
		candidates, method = gatherLinear(idx, q)
	}

	results := make([]Scored, 0, len(candidates))
	for _, icon := range candidates {
		score := scoreIcon(icon, q.Raw, tokens, synonymOnly, inv)
		if score > 0 {
			results = append(results, Scored{Icon: icon, Score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, method
}

func gatherLinear(idx *model.Index, q Query) (map[string]model.Icon, Method) {
	out := make(map[string]model.Icon)
	if idx == nil {
		return out, MethodLinear
	}
	for id, icon := range idx.Icons {
		if q.Source != "" && icon.Source != q.Source {
			continue
		}
		if q.Category != "" && icon.Category != q.Category {
			continue
		}
		out[id] = icon
	}
	return out, MethodLinear
}

func gatherFromInverted(idx *model.Index, inv *model.InvertedIndex, q Query, expandedTokens []string) (map[string]model.Icon, Method) {
	ids := make(map[string]bool)

	addPosting := func(term string) {
		if p, ok := inv.Terms[term]; ok {
			for _, id := range p.IconIDs {
				ids[id] = true
			}
		}
	}

	for _, t := range expandedTokens {
		addPosting(t)
		if len(t) >= 4 {
			prefix := t[:4]
			for _, u := range inv.Prefixes[prefix] {
				if strings.HasPrefix(u, t) || strings.HasPrefix(t, u) {
					addPosting(u)
				}
			}
		}
	}
	addPosting(q.Raw)

	if q.Source != "" {
		sourceIDs, ok := inv.Sources[q.Source]
		if !ok {
			return map[string]model.Icon{}, MethodInvertedIndex
		}
		ids = intersect(ids, toSet(sourceIDs))
	}
	if q.Category != "" {
		catIDs, ok := inv.Categories[q.Category]
		if !ok {
			return map[string]model.Icon{}, MethodInvertedIndex
		}
		ids = intersect(ids, toSet(catIDs))
	}

	out := make(map[string]model.Icon, len(ids))
	if idx == nil {
		return out, MethodInvertedIndex
	}
	for id := range ids {
		if icon, ok := idx.Icons[id]; ok {
			out[id] = icon
		}
	}
	return out, MethodInvertedIndex
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func intersect(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for k := range small {
		if big[k] {
			out[k] = true
		}
	}
	return out
}

// scoreIcon computes the additive score from spec.md §4.7's signal table.
func scoreIcon(icon model.Icon, rawQuery string, originalTokens []string, synonymOnly map[string]bool, inv *model.InvertedIndex) float64 {
	var score float64
	name := icon.Name

	if name == rawQuery {
		score += 2.0
	}
	if rawQuery != "" && strings.Contains(name, rawQuery) {
		score += 0.8
	}
	for _, tag := range icon.Tags {
		if tag == rawQuery {
			score += 0.5
			break
		}
	}
	for _, t := range originalTokens {
		if strings.Contains(name, t) {
			score += 0.15
		}
		for _, tag := range icon.Tags {
			if tag == t {
				score += 0.2
				break
			}
		}
		if strings.HasPrefix(name, t) {
			score += 0.3
		}
		if inv != nil && inv.TotalDocs > 0 {
			if p, ok := inv.Terms[t]; ok && p.DF > 0 {
				score += math.Log(float64(inv.TotalDocs)/float64(p.DF)) * 0.05
			}
		}
	}
	for syn := range synonymOnly {
		if strings.Contains(name, syn) {
			score += 0.1
			continue
		}
		for _, tag := range icon.Tags {
			if tag == syn {
				score += 0.1
				break
			}
		}
	}
	return score
}

// Paginate slices results per limit/offset and reports has_more.
func Paginate(results []Scored, limit, offset int) (page []Scored, total int, hasMore bool) {
	total = len(results)
	if offset >= total {
		return []Scored{}, total, false
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return results[offset:end], total, end < total
}
