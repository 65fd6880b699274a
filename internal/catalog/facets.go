package catalog

import (
	"sort"
	"strings"

	"github.com/safar/go-bookstore/internal/models"
)

// Facets are the option lists derived from the live product collection. They
// must be recomputed whenever the collection changes; caching them separately
// invites staleness.
type Facets struct {
	Categories    []string `json:"categories"`
	SubCategories []string `json:"sub_categories"`
	Authors       []string `json:"authors"`
	Classes       []string `json:"classes"`
	Editions      []string `json:"editions"`
}

// ProjectFacets scans the collection and returns sorted, de-duplicated option
// lists for every facet.
func ProjectFacets(products []models.Product) Facets {
	categories := newSet()
	subCategories := newSet()
	authors := newSet()
	classes := newSet()
	editions := newSet()

	for _, p := range products {
		if p.Category != nil {
			categories.add(p.Category.Name)
		}
		for _, sc := range p.SubCategories {
			subCategories.add(sc)
		}
		authors.add(p.Author)
		for _, c := range p.Classes {
			classes.add(c)
		}
		editions.add(p.Edition)
	}

	return Facets{
		Categories:    categories.sorted(),
		SubCategories: subCategories.sorted(),
		Authors:       authors.sorted(),
		Classes:       classes.sorted(),
		Editions:      editions.sorted(),
	}
}

type stringSet map[string]struct{}

func newSet() stringSet { return make(stringSet) }

func (s stringSet) add(v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	s[v] = struct{}{}
}

func (s stringSet) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
