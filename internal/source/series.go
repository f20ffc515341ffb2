// Package source downloads episode transcripts from chakoteya.net and keeps
// them in a local cache, one directory per series.
//
// A series directory holds the transcripts as 1.html, 2.html, ... in
// episode-listing order plus a meta.json recording how many transcripts the
// listing named. The cache is only trusted when the number of .html files
// matches that count; otherwise the series is downloaded again.
package source

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrUnknownSeries is returned for a series code that is not in the table.
var ErrUnknownSeries = errors.New("source: unknown series")

// Series describes where one show's transcripts live on the site.
type Series struct {
	// Code is the short name, such as "TNG".
	Code string

	// Path is the site directory holding episodes.htm and the transcripts.
	Path string

	// BGColor is the bgcolor of the listing table cells that link to
	// transcripts.
	BGColor string
}

var series = map[string]Series{
	"TOS": {Code: "TOS", Path: "/StarTrek/", BGColor: "#eeeeee"},
	"TNG": {Code: "TNG", Path: "/NextGen/", BGColor: "#eeeeee"},
	"DS9": {Code: "DS9", Path: "/DS9/", BGColor: "#eeeeee"},
	"VOY": {Code: "VOY", Path: "/Voyager/", BGColor: "#ffffff"},
	"ENT": {Code: "ENT", Path: "/Enterprise/", BGColor: "#eeeeee"},
}

// Codes returns every known series code, sorted.
func Codes() []string {
	return slices.Sorted(maps.Keys(series))
}

// Lookup returns the series for code, compared case-insensitively.
func Lookup(code string) (Series, error) {
	s, ok := series[strings.ToUpper(code)]
	if !ok {
		return Series{}, fmt.Errorf("%w %q; valid values: %s", ErrUnknownSeries, code, strings.Join(Codes(), ", "))
	}
	return s, nil
}
