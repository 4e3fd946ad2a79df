package reconcile

import (
	"regexp"
	"strings"
)

// PONumberExtractor pulls a purchase order number out of OCR text
type PONumberExtractor struct {
	patterns []*regexp.Regexp
}

// NewPONumberExtractor creates an extractor with the supported layouts
func NewPONumberExtractor() *PONumberExtractor {
	return &PONumberExtractor{
		patterns: []*regexp.Regexp{
			// Canonical: PO-2024-00031, PO 2024-00031, PO2024-00031
			regexp.MustCompile(`(?i)\bPO[\s-]?(\d{4}-\d{3,6})\b`),
			// Purchase Order #: 2024-00031, Purchase Order No. PO-2024-00031
			regexp.MustCompile(`(?i)\bpurchase\s+order\s*(?:#|no\.?|num(?:ber)?\.?)?\s*:?\s*#?\s*([A-Z0-9][A-Z0-9-]*)`),
			// PO #: 12345, P.O. No 12345, PO Number: 12345
			regexp.MustCompile(`(?i)\bP\.?O\.?\s*(?:#|no\.?|num(?:ber)?\.?)\s*:?\s*#?\s*([A-Z0-9][A-Z0-9-]*)`),
		},
	}
}

var digitRe = regexp.MustCompile(`\d`)

// Extract returns the normalized PO number found in text, if any. Patterns
// are tried in order and the first capture containing a digit wins.
func (e *PONumberExtractor) Extract(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}

	for _, pattern := range e.patterns {
		for _, matches := range pattern.FindAllStringSubmatch(text, -1) {
			if len(matches) < 2 {
				continue
			}
			token := strings.Trim(matches[1], "-")
			if !digitRe.MatchString(token) {
				continue
			}
			return NormalizePONumber(token), true
		}
	}

	return "", false
}

// NormalizePONumber uppercases a PO number and ensures the PO- prefix.
// An existing PO prefix (PO-, PO , PO2024) is replaced, so already
// prefixed numbers such as PO-ABC-12 come back unchanged. A token that
// only starts with the letters (POX-55) is treated as unprefixed.
func NormalizePONumber(raw string) string {
	n := strings.ToUpper(strings.TrimSpace(raw))
	if strings.HasPrefix(n, "PO") && len(n) > 2 {
		next := n[2]
		if next == '-' || next == ' ' || (next >= '0' && next <= '9') {
			if rest := strings.TrimLeft(n[2:], "- "); rest != "" {
				n = rest
			}
		}
	}
	return "PO-" + n
}
