package sitematch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeLastMatch, m)

	m, err = ParseMode("best_match")
	require.NoError(t, err)
	assert.Equal(t, ModeBestMatch, m)

	_, err = ParseMode("highest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown resolve mode")
}

func TestResolve_LastMatch(t *testing.T) {
	brands := NewRegistry([]string{"publicstorage", "cubesmart", "extraspace"})

	tests := []struct {
		name      string
		registry  *Registry
		facility  Facility
		wantURL   string
		wantBrand bool
		wantVia   Via
	}{
		{
			name:     "name match beats unrelated site",
			registry: NewRegistry(nil),
			facility: Facility{
				Name:          "Social Explorer",
				CandidateURLs: []string{"https://www.socialexplorer.com", "https://unrelatedsite.com"},
			},
			wantURL: "https://www.socialexplorer.com",
			wantVia: ViaName,
		},
		{
			name:     "exact name match leaves no room for a brand override",
			registry: NewRegistry([]string{"socialexplorer"}),
			facility: Facility{
				Name:          "Social Explorer",
				CandidateURLs: []string{"https://www.socialexplorer.com", "https://unrelatedsite.com"},
			},
			wantURL: "https://www.socialexplorer.com",
			wantVia: ViaName,
		},
		{
			name:     "brand candidate after a name match wins",
			registry: brands,
			facility: Facility{
				Name:          "Storage Depot",
				CandidateURLs: []string{"https://www.depot.com", "https://www.publicstorage.com/ca/la"},
			},
			wantURL:   "https://www.publicstorage.com/ca/la",
			wantBrand: true,
			wantVia:   ViaBrand,
		},
		{
			name:     "name match after a brand candidate wins but keeps the brand flag",
			registry: brands,
			facility: Facility{
				Name:          "Storage Depot",
				CandidateURLs: []string{"https://www.publicstorage.com/ca/la", "https://www.depot.com"},
			},
			wantURL:   "https://www.depot.com",
			wantBrand: true,
			wantVia:   ViaName,
		},
		{
			name:     "last qualifying name match wins over a better earlier one",
			registry: NewRegistry(nil),
			facility: Facility{
				Name:          "Cube Smart",
				CandidateURLs: []string{"https://www.cubesmart.com", "https://www.cubesmarts.com"},
			},
			wantURL: "https://www.cubesmarts.com",
			wantVia: ViaName,
		},
		{
			name:     "first block must cover half the name",
			registry: NewRegistry(nil),
			facility: Facility{
				Name:          "Cube Smart",
				CandidateURLs: []string{"https://www.c1ubesmart.com"},
			},
		},
		{
			name:     "leading block covering the name qualifies",
			registry: NewRegistry(nil),
			facility: Facility{
				Name:          "Cube Smart",
				CandidateURLs: []string{"https://www.cubesmxart.com"},
			},
			wantURL: "https://www.cubesmxart.com",
			wantVia: ViaName,
		},
		{
			name:     "generic words are stripped from the site token",
			registry: NewRegistry(nil),
			facility: Facility{
				Name:          "Golden State Self Storage",
				CandidateURLs: []string{"https://goldenstateselfstorage.com/", "https://www.yelp.com/biz/golden-state"},
			},
			wantURL: "https://goldenstateselfstorage.com/",
			wantVia: ViaName,
		},
		{
			name:     "token made only of generic words never matches by name",
			registry: NewRegistry(nil),
			facility: Facility{
				Name:          "Self Storage",
				CandidateURLs: []string{"https://www.selfstorage.com"},
			},
		},
		{
			name:     "subdomain tokens concatenate labels",
			registry: brands,
			facility: Facility{
				Name:          "US Cube Smart",
				CandidateURLs: []string{"https://us.cubesmart.com"},
			},
			wantURL: "https://us.cubesmart.com",
			wantVia: ViaName,
		},
		{
			name:     "brand registry on an otherwise unrelated name",
			registry: brands,
			facility: Facility{
				Name:          "Store-It-All Springfield",
				CandidateURLs: []string{"https://www.yelp.com/biz/x", "https://www.extraspace.com/facilities/ma/1"},
			},
			wantURL:   "https://www.extraspace.com/facilities/ma/1",
			wantBrand: true,
			wantVia:   ViaBrand,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(tc.registry, Options{Mode: ModeLastMatch})
			got := r.Resolve(tc.facility)
			assert.Equal(t, tc.wantURL, got.ChosenURL)
			assert.Equal(t, tc.wantBrand, got.IsKnownBrand)
			assert.Equal(t, tc.wantVia, got.Via)
			if tc.wantURL == "" {
				assert.Equal(t, NoneSentinel, got.Website())
			} else {
				assert.Contains(t, tc.facility.CandidateURLs, got.Website())
			}
		})
	}
}

func TestResolve_BestMatch(t *testing.T) {
	brands := NewRegistry([]string{"publicstorage", "cubesmart"})
	r := NewResolver(brands, Options{Mode: ModeBestMatch})

	t.Run("highest name ratio wins", func(t *testing.T) {
		got := r.Resolve(Facility{
			Name:          "Golden State",
			CandidateURLs: []string{"https://www.goldenstate.com", "https://www.goldenstates.com"},
		})
		assert.Equal(t, "https://www.goldenstate.com", got.ChosenURL)
		assert.Equal(t, ViaName, got.Via)
		assert.False(t, got.IsKnownBrand)
		assert.InDelta(t, 1.0, got.Ratio, 1e-9)
	})

	t.Run("brand outranks name regardless of order", func(t *testing.T) {
		for _, urls := range [][]string{
			{"https://www.publicstorage.com", "https://www.depot.com"},
			{"https://www.depot.com", "https://www.publicstorage.com"},
		} {
			got := r.Resolve(Facility{Name: "Storage Depot", CandidateURLs: urls})
			assert.Equal(t, "https://www.publicstorage.com", got.ChosenURL)
			assert.True(t, got.IsKnownBrand)
			assert.Equal(t, "publicstorage", got.MatchedBrand)
		}
	})

	t.Run("exact name match on a brand is flagged", func(t *testing.T) {
		got := r.Resolve(Facility{Name: "CubeSmart", CandidateURLs: []string{"https://www.cubesmart.com"}})
		assert.Equal(t, "https://www.cubesmart.com", got.ChosenURL)
		assert.True(t, got.IsKnownBrand)
		assert.Equal(t, ViaBrand, got.Via)
	})

	t.Run("ties keep the earlier url", func(t *testing.T) {
		got := r.Resolve(Facility{
			Name:          "Golden State",
			CandidateURLs: []string{"https://goldenstate.com", "https://www.goldenstate.com"},
		})
		assert.Equal(t, "https://goldenstate.com", got.ChosenURL)
	})
}

func TestResolve_NoCandidates(t *testing.T) {
	for _, mode := range []Mode{ModeLastMatch, ModeBestMatch} {
		r := NewResolver(NewRegistry([]string{"publicstorage"}), Options{Mode: mode})
		got := r.Resolve(Facility{Name: "Public Storage"})
		assert.False(t, got.Found())
		assert.False(t, got.IsKnownBrand)
		assert.Equal(t, NoneSentinel, got.Website())
	}
}

func TestResolve_EmptyNameFindsNothingByName(t *testing.T) {
	r := NewResolver(NewRegistry(nil), Options{})
	got := r.Resolve(Facility{Name: "Self Storage", CandidateURLs: []string{"https://www.abc.com", "https://www.selfstorage.com"}})
	assert.False(t, got.Found())
}

func TestResolve_SkipsMalformedCandidates(t *testing.T) {
	r := NewResolver(NewRegistry(nil), Options{})
	got := r.Resolve(Facility{
		Name:          "Cube Smart",
		CandidateURLs: []string{"cubesmart.com", "https://www.cubesmart.com", "not a url"},
	})
	assert.Equal(t, "https://www.cubesmart.com", got.ChosenURL)
	assert.Equal(t, 2, got.Malformed)
}

func TestResolve_Deterministic(t *testing.T) {
	r := NewResolver(NewRegistry([]string{"publicstorage", "extraspace"}), Options{})
	f := Facility{
		Name:          "Storage Depot",
		CandidateURLs: []string{"https://www.depot.com", "https://www.publicstorage.com", "https://www.yelp.com"},
	}
	want := r.Resolve(f)

	var wg sync.WaitGroup
	results := make([]Result, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(f)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}
