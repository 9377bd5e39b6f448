// Package phone normalizes phone numbers for outbound payloads.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a number has no international prefix and no region is given.
const DefaultRegion = "NL"

// NormalizeE164InRegion formats a phone number to E.164, reading national numbers
// as belonging to region. Invalid input is returned trimmed.
func NormalizeE164InRegion(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	if strings.TrimSpace(region) == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, strings.ToUpper(region))
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}
