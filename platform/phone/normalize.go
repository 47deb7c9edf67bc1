// Package phone normalizes sender numbers so SMS and voice webhooks
// resolve to the same lead record the intake form created.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// defaultRegion resolves numbers submitted without a country prefix.
const defaultRegion = "US"

// NormalizeE164 formats a phone number to E.164. Unparseable or invalid
// input comes back trimmed but otherwise untouched, so lookups still
// match whatever was stored at intake.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}
