// Package licences classifies licence codes, URLs and free-text licence
// statements into a small set of canonical licence tags.
//
// The tables are ordered most-specific-first: a shorter Creative Commons
// prefix such as ".../licenses/by" would otherwise swallow ".../licenses/by-nc-nd".
// Everything here is pure and safe for concurrent use.
package licences

import (
	"strings"
)

// Canonical licence tags.
const (
	CCBy        = "cc-by"
	CCBySA      = "cc-by-sa"
	CCByND      = "cc-by-nd"
	CCByNC      = "cc-by-nc"
	CCByNCND    = "cc-by-nc-nd"
	CCByNCSA    = "cc-by-nc-sa"
	CC0         = "cc0"
	NonStandard = "non-standard-licence"
)

// Signal names the piece of licence information that produced a classification.
type Signal string

const (
	SignalNone Signal = "none"
	SignalCode Signal = "code"
	SignalURL  Signal = "url"
	SignalText Signal = "text"
)

// Result is the outcome of classifying a licence triple.
type Result struct {
	// Tag is the canonical licence tag, or empty if no licence information was present.
	Tag string

	// Signal is the input that produced Tag.
	Signal Signal

	// Matched is the table entry that matched: the code, URL prefix or phrase.
	Matched string
}

type entry struct {
	match string
	tag   string
}

// MakeVariations returns every way of joining parts with either a hyphen or a
// space between each adjacent pair. Three parts give four variations.
func MakeVariations(parts ...string) []string {
	if len(parts) == 0 {
		return nil
	}
	gaps := len(parts) - 1
	out := make([]string, 0, 1<<gaps)
	for mask := 0; mask < 1<<gaps; mask++ {
		var b strings.Builder
		b.WriteString(parts[0])
		for i := 1; i < len(parts); i++ {
			if mask&(1<<(i-1)) != 0 {
				b.WriteByte(' ')
			} else {
				b.WriteByte('-')
			}
			b.WriteString(parts[i])
		}
		out = append(out, b.String())
	}
	return out
}

// VariationMap maps every hyphen/space variation of parts, in lower and upper
// case, to value.
func VariationMap(value string, parts ...string) map[string]string {
	m := make(map[string]string)
	for _, v := range MakeVariations(parts...) {
		m[strings.ToLower(v)] = value
		m[strings.ToUpper(v)] = value
	}
	return m
}

// codes maps lower-cased licence code spellings to canonical tags.
var codes = buildCodes()

func buildCodes() map[string]string {
	spellings := []struct {
		tag   string
		parts [][]string
	}{
		// A bare "cc" carries no modifiers; attribution is common to every CC licence.
		{CCBy, [][]string{{"cc", "by"}, {"cc"}}},
		{CCBySA, [][]string{{"cc", "by", "sa"}}},
		{CCByND, [][]string{{"cc", "by", "nd"}}},
		{CCByNC, [][]string{{"cc", "by", "nc"}, {"cc", "nc"}}},
		{CCByNCND, [][]string{{"cc", "by", "nc", "nd"}, {"cc", "by", "nd", "nc"}, {"cc", "nc", "nd"}}},
		{CCByNCSA, [][]string{{"cc", "by", "nc", "sa"}, {"cc", "by", "sa", "nc"}, {"cc", "nc", "sa"}}},
		{CC0, [][]string{{"cc0"}, {"cc", "0"}, {"cc", "zero"}}},
	}

	m := make(map[string]string)
	for _, s := range spellings {
		for _, p := range s.parts {
			for k, v := range VariationMap(s.tag, p...) {
				m[strings.ToLower(k)] = v
			}
		}
	}
	return m
}

// urlPrefixes is searched in order; more specific paths come first.
var urlPrefixes = buildURLPrefixes()

func buildURLPrefixes() []entry {
	paths := []entry{
		{"creativecommons.org/licenses/by-nc-nd", CCByNCND},
		{"creativecommons.org/licenses/by-nc-sa", CCByNCSA},
		{"creativecommons.org/licenses/by-nd", CCByND},
		{"creativecommons.org/licenses/by-sa", CCBySA},
		{"creativecommons.org/licenses/by-nc", CCByNC},
		{"creativecommons.org/licenses/by", CCBy},
		{"creativecommons.org/publicdomain/zero", CC0},
	}

	out := make([]entry, 0, len(paths)*2)
	for _, p := range paths {
		out = append(out,
			entry{"http://" + p.match, p.tag},
			entry{"https://" + p.match, p.tag},
		)
	}
	return out
}

// phrases is searched in order against lower-cased free text.
var phrases = buildPhrases()

func buildPhrases() []entry {
	const attribution = "Creative Commons Attribution"

	groups := []struct {
		tag   string
		url   string
		parts [][]string
	}{
		{CCByNCND, "creativecommons.org/licenses/by-nc-nd", [][]string{
			{attribution, "NonCommercial", "NoDerivatives"},
			{attribution, "NonCommercial", "NoDerivs"},
			{attribution, "Non", "Commercial", "No", "Derivatives"},
		}},
		{CCByNCSA, "creativecommons.org/licenses/by-nc-sa", [][]string{
			{attribution, "NonCommercial", "ShareAlike"},
			{attribution, "Non", "Commercial", "Share", "Alike"},
		}},
		{CCByND, "creativecommons.org/licenses/by-nd", [][]string{
			{attribution, "NoDerivatives"},
			{attribution, "NoDerivs"},
		}},
		{CCBySA, "creativecommons.org/licenses/by-sa", [][]string{
			{attribution, "ShareAlike"},
			{attribution, "Share", "Alike"},
		}},
		{CCByNC, "creativecommons.org/licenses/by-nc", [][]string{
			{attribution, "NonCommercial"},
			{attribution, "Non", "Commercial"},
		}},
		{CCBy, "creativecommons.org/licenses/by", [][]string{
			{attribution},
		}},
		{CC0, "creativecommons.org/publicdomain/zero", [][]string{
			{"Creative Commons Zero"},
			{"CC0"},
		}},
	}

	var out []entry
	for _, g := range groups {
		out = append(out, entry{g.url, g.tag})
		for _, p := range g.parts {
			for _, v := range MakeVariations(p...) {
				out = append(out, entry{v, g.tag})
			}
		}
	}
	return out
}

// Classify resolves a canonical licence tag from a licence code, URL and
// free-text paragraph, tried in that order. When none of the inputs carry any
// information the result has an empty Tag and SignalNone. When some input is
// present but unrecognised the tag is NonStandard.
func Classify(code, url, paragraph string) Result {
	code = strings.TrimSpace(code)
	url = strings.TrimSpace(url)
	paragraph = strings.TrimSpace(paragraph)

	if code != "" {
		if tag, ok := codes[strings.ToLower(code)]; ok {
			return Result{Tag: tag, Signal: SignalCode, Matched: code}
		}
	}

	if url != "" {
		lower := strings.ToLower(url)
		for _, p := range urlPrefixes {
			if strings.HasPrefix(lower, p.match) {
				return Result{Tag: p.tag, Signal: SignalURL, Matched: url}
			}
		}
	}

	if paragraph != "" {
		lower := strings.ToLower(paragraph)
		for _, p := range phrases {
			if strings.Contains(lower, strings.ToLower(p.match)) {
				return Result{Tag: p.tag, Signal: SignalText, Matched: p.match}
			}
		}
	}

	if code != "" || url != "" || paragraph != "" {
		return Result{Tag: NonStandard, Signal: SignalNone}
	}
	return Result{Signal: SignalNone}
}

// LookupCode returns the canonical tag for a licence code spelling, if known.
func LookupCode(code string) (string, bool) {
	tag, ok := codes[strings.ToLower(strings.TrimSpace(code))]
	return tag, ok
}

// vendorCodes maps licence resolver vocabulary that differs from ours.
var vendorCodes = map[string]string{
	"free-to-read": NonStandard,
}

// Translate maps a licence code reported by the licence resolver onto a
// canonical tag. Codes that are neither vendor-specific nor a known spelling
// pass through unchanged.
func Translate(vendorCode string) string {
	if tag, ok := vendorCodes[strings.ToLower(strings.TrimSpace(vendorCode))]; ok {
		return tag
	}
	if tag, ok := LookupCode(vendorCode); ok {
		return tag
	}
	return vendorCode
}

// IsCCBy reports whether tag is any of the attribution-based Creative Commons licences.
func IsCCBy(tag string) bool {
	switch tag {
	case CCBy, CCBySA, CCByND, CCByNC, CCByNCND, CCByNCSA:
		return true
	default:
		return false
	}
}
