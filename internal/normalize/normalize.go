// Package normalize canonicalizes raw CSV header names.
//
// Canonical form is lowercase, underscore-separated, ASCII alphanumeric.
// Beyond the usual trim/lowercase/separator collapsing, the normalizer strips
// client-code and wave-number tokens that export tools embed inside otherwise
// semantic names, so the same logical column lands on the same canonical name
// regardless of which wave or client produced the file:
//
//	kpvSF1W2Support  -> kpv_support
//	kpvSF2W1Support  -> kpv_support
//	Amount spent (USD) -> amount_spent_usd
//
// Normalization is a pure function: deterministic per name, independent of
// column order, and it never fails. Headers it cannot improve pass through;
// whether a column is known or required is the validator's concern.
package normalize

import (
	"regexp"
	"strings"
)

// Mapping records one header transformation for the run's audit trail.
type Mapping struct {
	Raw       string `json:"raw"`
	Canonical string `json:"canonical"`
}

var (
	// A client/wave token is a run of short letter groups each followed by
	// digits (SF1, W2, SF1W2, ...). Inside a camelCase word the run is
	// "sandwiched": preceded by a lowercase letter and followed by the
	// uppercase start of the next word. kpvSF1W2Support -> kpvSupport.
	embeddedToken = regexp.MustCompile(`([a-z])((?:[A-Z]{1,4}[0-9]{1,3})+)([A-Z])`)

	// The same token shape standing alone as a whole word (prefixed headers
	// like "SF1W2 Impressions").
	standaloneToken = regexp.MustCompile(`(^|[\s_])((?:[A-Z]{1,4}[0-9]{1,3})+)([\s_]|$)`)

	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	separatorRun  = regexp.MustCompile(`[^a-z0-9]+`)
)

// Header canonicalizes a single raw header name.
func Header(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "\uFEFF")
	if s == "" {
		return ""
	}

	s = embeddedToken.ReplaceAllString(s, "${1}${3}")
	s = standaloneToken.ReplaceAllString(s, "${1}${3}")
	s = camelBoundary.ReplaceAllString(s, "${1}_${2}")

	s = strings.ToLower(s)
	s = separatorRun.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// Headers canonicalizes a header row and returns the transformation log.
//
// The log records every header, changed or not, in input order, so the audit
// trail shows exactly how each source column was mapped.
func Headers(raw []string) ([]string, []Mapping) {
	out := make([]string, len(raw))
	log := make([]Mapping, len(raw))
	for i, h := range raw {
		c := Header(h)
		out[i] = c
		log[i] = Mapping{Raw: h, Canonical: c}
	}
	return out, log
}
