package carriers

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/BearBump/PackTrace/internal/models"
)

// Format rules, checked in order; the first match wins. Carriers publish
// overlapping bare-digit length ranges, so the prefix rules and the narrower
// USPS digit-count rules must stay ahead of DHL and FedEx.
var rules = []struct {
	re      *regexp.Regexp
	carrier models.Carrier
}{
	{regexp.MustCompile(`^1Z[0-9A-Z]{16}$`), models.CarrierUPS},
	{regexp.MustCompile(`^TBA\d{12}$`), models.CarrierAmazonLogistics},
	{regexp.MustCompile(`^C\d{8}$`), models.CarrierOnTrac},
	{regexp.MustCompile(`^(9400|9205|9361)\d{18}$`), models.CarrierUSPS},
	{regexp.MustCompile(`^[A-Z]{2}\d{9}[A-Z]{2}$`), models.CarrierUSPS},
	{regexp.MustCompile(`^420\d{27,30}$`), models.CarrierUSPS},
	{regexp.MustCompile(`^(3S|JV|JD)?\d{8,9}$`), models.CarrierDHL},
	{regexp.MustCompile(`^\d{10,11}$`), models.CarrierDHL},
	{regexp.MustCompile(`^(\d{12}|\d{14}|\d{20}|\d{22}|\d{34})$`), models.CarrierFedEx},
}

// Detect classifies a raw tracking number by format. Whitespace is stripped
// first: carriers often display numbers space-separated ("1Z 999 999 ...").
// Pure and deterministic; returns CarrierUnknown when nothing matches.
func Detect(raw string) models.Carrier {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	for _, rule := range rules {
		if rule.re.MatchString(cleaned) {
			return rule.carrier
		}
	}
	return models.CarrierUnknown
}
