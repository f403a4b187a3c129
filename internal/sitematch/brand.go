package sitematch

import "strings"

// BrandRatioThreshold is the similarity a site token must exceed against a
// registry entry to count as that brand. It tolerates drift but not
// containment.
const BrandRatioThreshold = 0.99

// Registry is the immutable list of known brand site tokens. It is safe for
// concurrent use.
type Registry struct {
	entries []string
}

// NewRegistry builds a Registry from raw entries. Entries are trimmed, blanks
// are dropped, and duplicates keep their first position.
func NewRegistry(entries []string) *Registry {
	seen := make(map[string]struct{}, len(entries))
	kept := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		kept = append(kept, e)
	}
	return &Registry{entries: kept}
}

// Len returns the number of brand tokens.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Entries returns a copy of the brand tokens in registry order.
func (r *Registry) Entries() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.entries))
	copy(out, r.entries)
	return out
}

// BrandMatch is the result of checking a site token against the registry.
type BrandMatch struct {
	Matched   bool    `json:"matched"`
	BestRatio float64 `json:"best_ratio"`
	// Entry is the winning registry token; empty unless Matched.
	Entry string `json:"entry,omitempty"`
}

// Match scores siteToken against every entry. The highest ratio wins and
// ties go to the earlier entry.
func (r *Registry) Match(siteToken string) BrandMatch {
	var (
		best  float64
		entry string
	)
	if r != nil {
		for _, e := range r.entries {
			ratio := Score(e, siteToken).Ratio
			if ratio > best {
				best = ratio
				entry = e
			}
		}
	}

	if best > BrandRatioThreshold {
		return BrandMatch{Matched: true, BestRatio: best, Entry: entry}
	}
	return BrandMatch{BestRatio: best}
}
