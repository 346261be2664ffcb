// Package phone normalizes customer phone numbers.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used for numbers written without a country code.
const DefaultRegion = "RU"

// Normalizer formats numbers to E.164 for a fixed default region.
type Normalizer struct {
	region string
}

// NewNormalizer returns a Normalizer; an empty region falls back to DefaultRegion.
func NewNormalizer(region string) Normalizer {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = DefaultRegion
	}
	return Normalizer{region: region}
}

// E164 formats input to E.164. Unparseable or invalid input is returned trimmed
// so a lead never loses what the customer typed.
func (n Normalizer) E164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	num, err := phonenumbers.Parse(trimmed, n.region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return trimmed
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// Valid reports whether input parses to a valid number.
func (n Normalizer) Valid(input string) bool {
	num, err := phonenumbers.Parse(strings.TrimSpace(input), n.region)
	return err == nil && phonenumbers.IsValidNumber(num)
}
