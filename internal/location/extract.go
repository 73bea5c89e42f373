// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package location

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/avoronkov/eventscope/internal/cache"
)

// UnknownCity is the sentinel returned when no address segment qualifies
// as a city. IP providers returning it (in any case) are treated as having
// no city.
const UnknownCity = "unknown"

// streetMarkers are the substrings that disqualify an address segment from
// being a city name. Stems cover the usual Russian street/house
// abbreviations plus common English ones from OSM-formatted addresses.
var streetMarkers = []string{
	"ул.", "улица", "пр-т", "просп", "пер.", "переулок", "б-р", "бульвар",
	"ш.", "шоссе", "наб.", "набережная", "пл.", "площадь", "д.",
	"стр.", "строение", "корп.", "кв.", "проезд",
	"street", "st.", "avenue", "road", "rd.", "lane",
}

// markerMatcher matches every street marker in one pass over a segment.
var markerMatcher = func() *cache.AhoCorasick {
	ac := cache.NewAhoCorasick()
	ac.AddPatterns(streetMarkers, nil)
	ac.Build()
	return ac
}()

// ExtractCity pulls a city token out of a free-text geocoded address.
//
// The address is split on commas and segments are scanned twice: first the
// leading three (city usually appears early in both Yandex and Nominatim
// formats), then all of them. The first segment that is at least three
// runes long, starts with an uppercase letter, and contains no street
// marker wins. Returns UnknownCity when nothing qualifies.
func ExtractCity(address string) string {
	segments := strings.Split(address, ",")

	limit := 3
	if limit > len(segments) {
		limit = len(segments)
	}
	if city, ok := scanSegments(segments[:limit]); ok {
		return city
	}
	if city, ok := scanSegments(segments); ok {
		return city
	}
	return UnknownCity
}

func scanSegments(segments []string) (string, bool) {
	for _, seg := range segments {
		token := strings.TrimSpace(seg)
		// Yandex prefixes cities with "г. "; strip it before the marker
		// check so the prefix itself does not disqualify the token.
		token = strings.TrimSpace(strings.TrimPrefix(token, "г."))
		if qualifies(token) {
			return token, true
		}
	}
	return "", false
}

func qualifies(token string) bool {
	if utf8.RuneCountInString(token) < 3 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(token)
	if !unicode.IsUpper(first) {
		return false
	}
	return !markerMatcher.Contains(token)
}
