package domain

import (
	"regexp"
	"strings"
	"time"
)

// LicenceEntry is one row of a council's public HMO register.
type LicenceEntry struct {
	Register      string
	Council       string
	LicenceNumber string
	Address       string
	Postcode      string
	Holder        string
	Status        string
	Expiry        *time.Time
	MaxOccupants  *int
	Households    *int
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lower-cases s and joins its alphanumeric runs with dashes.
func Slug(s string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// ExternalID is the stable key a register row is stored under.
func (e LicenceEntry) ExternalID() string {
	return "hmo-register:" + Slug(e.Council) + ":" + Slug(e.LicenceNumber)
}

// Expired reports whether the licence lapsed before now.
func (e LicenceEntry) Expired(now time.Time) bool {
	return e.Expiry != nil && e.Expiry.Before(now)
}

// LicenceStatus normalises the register status column, falling back to the
// expiry date when the register has no status.
func (e LicenceEntry) LicenceStatus(now time.Time) string {
	s := strings.ToLower(strings.TrimSpace(e.Status))
	switch {
	case strings.Contains(s, "revoked"):
		return "revoked"
	case strings.Contains(s, "expired"), e.Expired(now):
		return "expired"
	case strings.Contains(s, "pending"), strings.Contains(s, "applied"), strings.Contains(s, "application"):
		return "pending"
	case strings.Contains(s, "temporary"), strings.Contains(s, "exemption"):
		return "temporary_exemption"
	}
	return "licensed"
}
