package search

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"gfbeer/venue-finder/internal/model"
)

// LoosePrefixLen is how many leading runes of the query the loosened match compares.
const LoosePrefixLen = 4

// beerEntry is one "FORMAT - Brewery Beer (Style)" item of a venue's beer details.
type beerEntry struct {
	format  string
	segment string // brewery and beer name
	style   string
}

func parseBeerDetails(details string) []beerEntry {
	var out []beerEntry
	for _, raw := range strings.Split(details, ", ") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		var e beerEntry
		rest := raw
		if format, after, ok := strings.Cut(raw, " - "); ok {
			e.format, rest = strings.TrimSpace(format), after
		}
		if open := strings.LastIndex(rest, "("); open >= 0 && strings.HasSuffix(rest, ")") {
			e.style = strings.TrimSpace(rest[open+1 : len(rest)-1])
			rest = rest[:open]
		}
		e.segment = strings.TrimSpace(rest)
		out = append(out, e)
	}
	return out
}

// wordPattern matches q as a whole word or phrase, case-insensitively. anchored requires it
// to open the text.
func wordPattern(q string, anchored bool) *regexp.Regexp {
	lead := `(?:^|[^\pL\pN])`
	if anchored {
		lead = `^`
	}
	return regexp.MustCompile(`(?i)` + lead + regexp.QuoteMeta(q) + `(?:$|[^\pL\pN])`)
}

// scopedMatcher is strategy one: a word match restricted to the part of each entry the kind
// refers to. Breweries lead the segment, beer names follow them and styles sit in brackets.
func scopedMatcher(q string, kind model.BeerKind) func(string) bool {
	var re *regexp.Regexp
	switch kind {
	case model.BeerBrewery:
		re = wordPattern(q, true)
	default:
		re = wordPattern(q, false)
	}
	return func(details string) bool {
		for _, e := range parseBeerDetails(details) {
			field := e.segment
			if kind == model.BeerStyle {
				field = e.style
			}
			if field != "" && re.MatchString(field) {
				return true
			}
		}
		return false
	}
}

// substringMatcher is strategy two.
func substringMatcher(q string) func(string) bool {
	needle := strings.ToLower(q)
	return func(details string) bool {
		return strings.Contains(strings.ToLower(details), needle)
	}
}

// looseMatcher is strategy three: the first LoosePrefixLen runes of the folded query against
// the start of every folded word.
func looseMatcher(q string) func(string) bool {
	words := foldWords(q)
	prefix := strings.Join(words, "")
	if r := []rune(prefix); len(r) > LoosePrefixLen {
		prefix = string(r[:LoosePrefixLen])
	}
	return func(details string) bool {
		if prefix == "" {
			return false
		}
		for _, w := range foldWords(details) {
			if strings.HasPrefix(w, prefix) {
				return true
			}
		}
		return false
	}
}

// foldWords lower-cases s, strips diacritics and splits it on anything that is not a letter
// or digit.
func foldWords(s string) []string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// FilterBeer keeps the venues whose beer details match q, trying progressively looser
// strategies until one yields something. It returns the kept venues and the strategy used
// (1 to 3, or 0 when nothing matched).
func FilterBeer(items []model.VenueSummary, q string, kind model.BeerKind) ([]model.VenueSummary, int) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []model.VenueSummary{}, 0
	}

	strategies := []func(string) bool{
		scopedMatcher(q, kind),
		substringMatcher(q),
		looseMatcher(q),
	}
	for i, match := range strategies {
		kept := make([]model.VenueSummary, 0, len(items))
		for _, v := range items {
			if v.BeerDetails != "" && match(v.BeerDetails) {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			return kept, i + 1
		}
	}
	return []model.VenueSummary{}, 0
}
