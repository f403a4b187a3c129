// Package sitematch picks a facility's website out of search-discovered
// candidate URLs by comparing the facility name against each URL's site token.
package sitematch

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// FormatError reports a candidate URL that cannot be split into
// scheme://host/... segments.
type FormatError struct {
	URL string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("sitematch: malformed url %q: expected scheme://host", e.URL)
}

// ExtractSiteToken reduces a URL to a short site token derived from its host:
//
//	https://www.socialexplorer.com -> socialexplorer
//	https://us.socialexplorer.com  -> ussocialexplorer
//	https://socialexplorer.com     -> socialexplorer
func ExtractSiteToken(rawURL string) (string, error) {
	segments := strings.Split(rawURL, "/")
	if len(segments) < 3 {
		return "", &FormatError{URL: rawURL}
	}

	labels := strings.Split(segments[2], ".")

	var token string
	switch {
	case len(labels) > 2 && labels[0] != "www":
		token = labels[0] + labels[1]
	case len(labels) > 2:
		token = labels[1]
	default:
		token = labels[0]
	}

	zap.L().Debug("extracted site token", zap.String("url", rawURL), zap.String("token", token))
	return token, nil
}
