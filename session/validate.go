package session

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	maxNameLength  = 100
	maxEmailLength = 254
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// NormalizeName composes the input to NFC and collapses runs of whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}

// ValidName reports whether name contains only letters and spaces, with at
// least one letter. Combining marks are accepted so decomposed input passes.
func ValidName(name string) bool {
	name = NormalizeName(name)
	if name == "" || len(name) > maxNameLength {
		return false
	}
	letters := 0
	for _, r := range name {
		switch {
		case unicode.IsLetter(r):
			letters++
		case r == ' ', unicode.Is(unicode.Mn, r):
		default:
			return false
		}
	}
	return letters > 0
}

// NormalizeEmail trims surrounding whitespace and lowercases the domain part.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

// ValidEmail reports whether email has the shape local@domain.tld.
func ValidEmail(email string) bool {
	email = NormalizeEmail(email)
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	if strings.Contains(email, "..") {
		return false
	}
	return emailPattern.MatchString(email)
}
