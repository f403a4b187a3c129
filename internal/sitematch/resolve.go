package sitematch

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	// NameRatioThreshold is the similarity a cleaned site token must exceed
	// against the normalized facility name.
	NameRatioThreshold = 0.6

	// nameBlockFraction is the share of the normalized name that the first
	// matching block (minus one) must exceed.
	nameBlockFraction = 0.5

	// NoneSentinel is written in place of a website when no candidate qualifies.
	NoneSentinel = "NULL"
)

// Mode selects how qualifying candidates compete within one facility.
type Mode string

const (
	// ModeLastMatch keeps the last candidate, in input order, that passes
	// either test. The best-score tracker is reset for every URL, so a brand
	// hit only overrides a name hit on the same URL when it scores higher,
	// and the brand flag stays set once any candidate hits the registry.
	ModeLastMatch Mode = "last_match"

	// ModeBestMatch keeps the highest scoring candidate across the whole
	// list. Brand hits outrank name hits; ties go to the earlier URL.
	ModeBestMatch Mode = "best_match"
)

// ParseMode validates a configured mode. Empty selects ModeLastMatch.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeLastMatch:
		return ModeLastMatch, nil
	case ModeBestMatch:
		return ModeBestMatch, nil
	default:
		return "", eris.Errorf("sitematch: unknown resolve mode %q", s)
	}
}

// Facility is one business lacking a known website, with the URLs that
// search turned up for it.
type Facility struct {
	Name          string   `json:"name"`
	CandidateURLs []string `json:"candidate_urls"`
}

// Via records which test selected the chosen URL.
type Via string

const (
	ViaNone  Via = ""
	ViaName  Via = "name"
	ViaBrand Via = "brand"
)

// Result is the resolution for one facility.
type Result struct {
	// ChosenURL is copied verbatim from the candidate list. Empty when
	// nothing qualified.
	ChosenURL    string  `json:"chosen_url,omitempty"`
	IsKnownBrand bool    `json:"is_known_brand"`
	Via          Via     `json:"via,omitempty"`
	Ratio        float64 `json:"ratio,omitempty"`
	// MatchedBrand is the registry entry behind the most recent brand hit.
	MatchedBrand string `json:"matched_brand,omitempty"`
	// Malformed counts candidates skipped because they were not absolute URLs.
	Malformed int `json:"malformed,omitempty"`
}

// Found reports whether any candidate was chosen.
func (r Result) Found() bool {
	return r.ChosenURL != ""
}

// Website returns the chosen URL or NoneSentinel.
func (r Result) Website() string {
	if !r.Found() {
		return NoneSentinel
	}
	return r.ChosenURL
}

// Options configures a Resolver.
type Options struct {
	Mode Mode
}

// Resolver chooses a website per facility. It holds no mutable state and is
// safe for concurrent use.
type Resolver struct {
	registry *Registry
	mode     Mode
}

// NewResolver creates a Resolver over a loaded brand registry.
func NewResolver(registry *Registry, opts Options) *Resolver {
	mode := opts.Mode
	if mode == "" {
		mode = ModeLastMatch
	}
	return &Resolver{registry: registry, mode: mode}
}

// Mode returns the configured resolution mode.
func (r *Resolver) Mode() Mode {
	return r.mode
}

// Registry returns the brand registry the resolver matches against.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Resolve picks at most one of f.CandidateURLs as the facility's website.
func (r *Resolver) Resolve(f Facility) Result {
	if len(f.CandidateURLs) == 0 {
		return Result{}
	}

	name := NormalizeName(f.Name)
	log := zap.L().With(zap.String("facility", f.Name), zap.String("normalized", name))

	if r.mode == ModeBestMatch {
		return r.resolveBest(name, f.CandidateURLs, log)
	}
	return r.resolveLast(name, f.CandidateURLs, log)
}

func (r *Resolver) resolveLast(name string, urls []string, log *zap.Logger) Result {
	var res Result
	for _, u := range urls {
		token, err := ExtractSiteToken(u)
		if err != nil {
			res.Malformed++
			log.Warn("skipping malformed candidate", zap.String("url", u), zap.Error(err))
			continue
		}

		best := 0.0
		if s, ok := nameMatch(name, token); ok {
			best = s.Ratio
			res.ChosenURL, res.Via, res.Ratio = u, ViaName, s.Ratio
			log.Info("name matched candidate", zap.String("url", u), zap.Float64("ratio", s.Ratio))
		}

		if bm := r.registry.Match(token); bm.Matched && bm.BestRatio > best {
			res.ChosenURL, res.Via, res.Ratio = u, ViaBrand, bm.BestRatio
			res.IsKnownBrand = true
			res.MatchedBrand = bm.Entry
			log.Info("known brand candidate", zap.String("url", u), zap.String("brand", bm.Entry), zap.Float64("ratio", bm.BestRatio))
		}
	}
	return res
}

func (r *Resolver) resolveBest(name string, urls []string, log *zap.Logger) Result {
	var res Result
	for _, u := range urls {
		token, err := ExtractSiteToken(u)
		if err != nil {
			res.Malformed++
			log.Warn("skipping malformed candidate", zap.String("url", u), zap.Error(err))
			continue
		}

		if bm := r.registry.Match(token); bm.Matched {
			if res.Via != ViaBrand || bm.BestRatio > res.Ratio {
				res.ChosenURL, res.Via, res.Ratio = u, ViaBrand, bm.BestRatio
				res.IsKnownBrand = true
				res.MatchedBrand = bm.Entry
				log.Info("known brand candidate", zap.String("url", u), zap.String("brand", bm.Entry), zap.Float64("ratio", bm.BestRatio))
			}
			continue
		}

		if res.Via == ViaBrand {
			continue
		}
		if s, ok := nameMatch(name, token); ok && (res.Via == ViaNone || s.Ratio > res.Ratio) {
			res.ChosenURL, res.Via, res.Ratio = u, ViaName, s.Ratio
			log.Info("name matched candidate", zap.String("url", u), zap.Float64("ratio", s.Ratio))
		}
	}
	return res
}

// nameMatch applies the name-similarity test to a raw site token.
func nameMatch(name, token string) (Similarity, bool) {
	cleaned := StripSelfStorage(token)
	if cleaned == "" {
		return Similarity{}, false
	}
	s := Score(name, cleaned)
	ok := s.Ratio > NameRatioThreshold &&
		float64(s.FirstBlockSizeMinusOne) > float64(len(name))*nameBlockFraction
	return s, ok
}
