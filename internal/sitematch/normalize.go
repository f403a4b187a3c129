package sitematch

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Generic storage-industry words that dominate similarity when left in.
const (
	wordSelf    = "self"
	wordStorage = "storage"
)

// NormalizeName turns a free-text facility name into a comparable token:
// "Cube Smart Self Storage" -> "cubesmart".
func NormalizeName(name string) string {
	return StripSelfStorage(ToAlnumLower(name))
}

// ToAlnumLower lowercases s with full Unicode case mapping and keeps only
// ASCII letters and digits.
func ToAlnumLower(s string) string {
	lower := cases.Lower(language.Und).String(s)

	var b strings.Builder
	b.Grow(len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// StripSelfStorage removes every "self" and then every "storage" substring,
// repeating until neither remains so that removals which splice a new
// occurrence together ("sselfelf") are also stripped. The result may be empty.
func StripSelfStorage(s string) string {
	for {
		next := strings.ReplaceAll(s, wordSelf, "")
		next = strings.ReplaceAll(next, wordStorage, "")
		if next == s {
			return s
		}
		s = next
	}
}
