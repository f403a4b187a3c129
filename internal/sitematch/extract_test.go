package sitematch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSiteToken(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.socialexplorer.com", "socialexplorer"},
		{"https://us.socialexplorer.com", "ussocialexplorer"},
		{"https://socialexplorer.com", "socialexplorer"},
		{"https://www.cubesmart.com/self-storage/nj/", "cubesmart"},
		{"http://locations.extraspace.com/ny", "locationsextraspace"},
		{"https://a.b.c.d", "ab"},
		{"https://localhost", "localhost"},
		{"https://www.publicstorage.com?utm=x", "publicstorage"},
	}

	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			got, err := ExtractSiteToken(tc.url)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractSiteToken_Malformed(t *testing.T) {
	for _, raw := range []string{"", "www.cubesmart.com", "https:/cubesmart.com"} {
		_, err := ExtractSiteToken(raw)
		require.Error(t, err, "url %q", raw)

		var fe *FormatError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, raw, fe.URL)
		assert.Contains(t, err.Error(), "malformed url")
	}
}
