// Package phone normalises phone numbers arriving from the CRM and the portal.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion applies to numbers stored without a country prefix.
const DefaultRegion = "US"

// NormalizeE164 is Normalize with DefaultRegion.
func NormalizeE164(input string) string {
	return Normalize(input, DefaultRegion)
}

// Normalize formats input as E.164, reading national numbers in region.
// Anything that does not parse to a valid number comes back trimmed but
// otherwise untouched, so a CRM value is never lost.
func Normalize(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}
