// Package dedup collapses duplicate news articles in two phases: exact
// identity (normalized URL or normalized title) followed by
// term-frequency cosine similarity clustering over the article text.
package dedup

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"hightrade/internal/domain"
	"hightrade/internal/idhash"
)

// bodyTokenCap bounds how much of the body feeds the similarity vector.
const bodyTokenCap = 200

// DefaultThreshold is the cosine similarity above which two articles are
// considered the same story.
const DefaultThreshold = 0.6

// Deduplicator is stateless and safe for concurrent use.
type Deduplicator struct {
	threshold float64
}

// New returns a Deduplicator. A non-positive threshold falls back to the
// default.
func New(threshold float64) *Deduplicator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Deduplicator{threshold: threshold}
}

type indexed struct {
	pos int
	art domain.Article
}

// Dedupe returns the surviving representatives in input order. The
// operation is idempotent: running it on its own output is a no-op.
func (d *Deduplicator) Dedupe(articles []domain.Article) []domain.Article {
	if len(articles) <= 1 {
		return append([]domain.Article(nil), articles...)
	}

	in := make([]indexed, len(articles))
	for i, a := range articles {
		in[i] = indexed{pos: i, art: a}
	}

	survivors := d.dedupeSimilar(d.dedupeExact(in))
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].pos < survivors[j].pos })

	out := make([]domain.Article, len(survivors))
	for i, s := range survivors {
		out[i] = s.art
	}
	return out
}

// dedupeExact groups by normalized URL and normalized title; each group
// keeps one representative.
func (d *Deduplicator) dedupeExact(articles []indexed) []indexed {
	groups := make(map[string][]indexed)
	keyOrder := make([]string, 0, len(articles))
	titleToKey := make(map[string]string)

	for _, a := range articles {
		key := idhash.NormalizeURL(a.art.URL)
		if key == "" {
			key = "id:" + a.art.ID
		}
		title := normalizeTitle(a.art.Title)

		// A title collision folds into the earlier group even when URLs
		// differ (syndicated copies).
		if title != "" {
			if prev, ok := titleToKey[title]; ok {
				key = prev
			} else {
				titleToKey[title] = key
			}
		}

		if _, seen := groups[key]; !seen {
			keyOrder = append(keyOrder, key)
		}
		groups[key] = append(groups[key], a)
	}

	out := make([]indexed, 0, len(keyOrder))
	for _, key := range keyOrder {
		out = append(out, pickRepresentative(groups[key]))
	}
	return out
}

// dedupeSimilar clusters near-duplicates by term-frequency cosine
// similarity and keeps one representative per cluster.
func (d *Deduplicator) dedupeSimilar(articles []indexed) []indexed {
	if len(articles) <= 1 {
		return articles
	}

	vectors := buildVectors(articles)

	parent := make([]int, len(articles))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for i := 0; i < len(articles); i++ {
		for j := i + 1; j < len(articles); j++ {
			if cosine(vectors[i], vectors[j]) >= d.threshold {
				union(i, j)
			}
		}
	}

	clusters := make(map[int][]indexed)
	rootOrder := make([]int, 0, len(articles))
	for i, a := range articles {
		r := find(i)
		if _, seen := clusters[r]; !seen {
			rootOrder = append(rootOrder, r)
		}
		clusters[r] = append(clusters[r], a)
	}

	out := make([]indexed, 0, len(rootOrder))
	for _, r := range rootOrder {
		out = append(out, pickRepresentative(clusters[r]))
	}
	return out
}

// pickRepresentative chooses the article to keep from a duplicate group:
// highest relevance, then earliest publication, then lowest ID.
func pickRepresentative(group []indexed) indexed {
	best := group[0]
	for _, a := range group[1:] {
		switch {
		case a.art.Relevance > best.art.Relevance:
			best = a
		case a.art.Relevance == best.art.Relevance && a.art.PublishedAt.Before(best.art.PublishedAt):
			best = a
		case a.art.Relevance == best.art.Relevance && a.art.PublishedAt.Equal(best.art.PublishedAt) && a.art.ID < best.art.ID:
			best = a
		}
	}
	return best
}

func normalizeTitle(title string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

func splitTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenize yields the similarity tokens for one article: the full title
// plus the first bodyTokenCap tokens of the body.
func tokenize(a domain.Article) []string {
	tokens := splitTokens(a.Title)
	body := splitTokens(a.RawText)
	if len(body) > bodyTokenCap {
		body = body[:bodyTokenCap]
	}
	return append(tokens, body...)
}

// buildVectors computes one sparse term-frequency vector per article.
// Each vector depends only on its own article, never on the rest of the
// batch, so pairwise similarities are stable across passes and deduping
// an already-deduped batch keeps exactly the same set.
func buildVectors(articles []indexed) []map[string]float64 {
	vectors := make([]map[string]float64, len(articles))
	for i, a := range articles {
		counts := make(map[string]float64)
		tokens := tokenize(a.art)
		for _, tok := range tokens {
			counts[tok]++
		}
		for tok := range counts {
			counts[tok] /= float64(len(tokens))
		}
		vectors[i] = counts
	}
	return vectors
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot, na, nb float64
	for tok, va := range a {
		na += va * va
		if vb, ok := b[tok]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
