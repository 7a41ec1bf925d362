// Package analysis derives commit breakdowns and detailed size, quality and
// per-author statistics from crawled commits.
package analysis

import (
	"math"
	"strings"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
)

// Unknown labels commits whose author, project or repository is missing
const Unknown = "Unknown"

// Identity selects how commits are attributed to authors
type Identity string

const (
	// IdentityName keys authors by display name; namesakes are merged
	IdentityName Identity = "name"
	// IdentityNameEmail keys authors by display name and lowercased email
	IdentityNameEmail Identity = "name_email"
)

// ParseIdentity validates a configured identity, defaulting to IdentityName
func ParseIdentity(s string) (Identity, error) {
	switch Identity(strings.ToLower(strings.TrimSpace(s))) {
	case "", IdentityName:
		return IdentityName, nil
	case IdentityNameEmail:
		return IdentityNameEmail, nil
	default:
		return "", errors.ValidationErrorf("unknown author identity %q", s)
	}
}

// Key returns the grouping key for an author
func (i Identity) Key(name, email string) string {
	if name == "" {
		name = Unknown
	}
	if i != IdentityNameEmail || email == "" {
		return name
	}
	return name + " <" + strings.ToLower(email) + ">"
}

// Round2 rounds to two decimals, halves away from zero
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}
