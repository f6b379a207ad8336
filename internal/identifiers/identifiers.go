// Package identifiers normalises the bibliographic identifiers a spreadsheet
// row can carry: PMCIDs, PMIDs and DOIs.
package identifiers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/helixir/oa-compliance-service/internal/domain"
)

var (
	pmcidPattern = regexp.MustCompile(`^(?i:pmc)?(\d+)$`)
	pmidPattern  = regexp.MustCompile(`^\d{1,10}$`)
	doiPattern   = regexp.MustCompile(`^10\.\d+/.+$`)
)

// doiPrefixes are stripped, case-insensitively, in order.
var doiPrefixes = []string{
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"https://doi.org/",
	"http://doi.org/",
	"dx.doi.org/",
	"doi.org/",
	"doi:",
}

// Normalize returns the canonical form of raw for the given identifier kind.
// A syntactically invalid value returns an error wrapping domain.ErrInvalidIdentifier.
func Normalize(kind domain.IdentifierKind, raw string) (string, error) {
	switch kind {
	case domain.KindPMCID:
		return PMCID(raw)
	case domain.KindPMID:
		return PMID(raw)
	case domain.KindDOI:
		return DOI(raw)
	default:
		return "", fmt.Errorf("%w: unknown identifier kind %q", domain.ErrInvalidIdentifier, kind)
	}
}

// PMCID normalises a PubMed Central id to the form PMC<digits>.
func PMCID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	m := pmcidPattern.FindStringSubmatch(s)
	if m == nil {
		return "", invalid(domain.KindPMCID, raw)
	}
	return "PMC" + m[1], nil
}

// PMID normalises a PubMed id to its bare digits.
func PMID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if len(s) >= 5 && strings.EqualFold(s[:5], "pmid:") {
		s = strings.TrimSpace(s[5:])
	}
	if !pmidPattern.MatchString(s) {
		return "", invalid(domain.KindPMID, raw)
	}
	return s, nil
}

// DOI normalises a DOI to the form 10.<registrant>/<suffix>, preserving the
// case of the suffix.
func DOI(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	for _, prefix := range doiPrefixes {
		if strings.HasPrefix(lower, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	if !doiPattern.MatchString(s) {
		return "", invalid(domain.KindDOI, raw)
	}
	return s, nil
}

func invalid(kind domain.IdentifierKind, raw string) error {
	return fmt.Errorf("%w: %s %q", domain.ErrInvalidIdentifier, kind.Label(), raw)
}
