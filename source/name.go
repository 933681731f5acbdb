package source

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TrackName derives a display name from a file path: the base name without
// its extension, with accents folded to plain ASCII.
func TrackName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	folded, _, err := transform.String(t, base)
	if err != nil {
		return base
	}

	folded = strings.Map(func(r rune) rune {
		if !unicode.IsPrint(r) {
			return -1
		}
		if unicode.Is(unicode.Zs, r) || r == '_' {
			return ' '
		}
		return r
	}, folded)
	folded = strings.Join(strings.Fields(folded), " ")

	if folded == "" {
		return base
	}
	return folded
}
