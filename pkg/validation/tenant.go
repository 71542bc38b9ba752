package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrNameRequired    = errors.New("tenant name is required")
	ErrNameTooShort    = errors.New("tenant name must be at least 2 characters long")
	ErrNameTooLong     = errors.New("tenant name cannot be longer than 100 characters")
	ErrSubdomainEmpty  = errors.New("subdomain is required")
	ErrSubdomainShort  = errors.New("subdomain must be at least 3 characters long")
	ErrSubdomainLong   = errors.New("subdomain cannot be longer than 63 characters")
	ErrSubdomainChars  = errors.New("subdomain can only contain lowercase letters, numbers, and hyphens")
	ErrSubdomainHyphen = errors.New("subdomain cannot start or end with a hyphen")
	ErrSubdomainDouble = errors.New("subdomain cannot contain consecutive hyphens")
	ErrSubdomainReserved  = errors.New("this subdomain is reserved and cannot be used")
	ErrEmojiRequired   = errors.New("emoji is required")
	ErrEmojiTooLong    = errors.New("emoji cannot be longer than 10 characters")
	ErrEmojiInvalid    = errors.New("please enter a valid emoji")
)

const (
	MinTenantNameLength = 2
	MaxTenantNameLength = 100
	MinSubdomainLength  = 3
	MaxSubdomainLength  = 63
	MaxEmojiLength      = 10
)

var subdomainPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

var reservedSubdomains = map[string]struct{}{}

func init() {
	for _, s := range []string{
		"www", "api", "app", "admin", "dashboard", "blog", "docs", "help", "support",
		"mail", "email", "ftp", "cdn", "static", "assets", "media", "images", "files",
		"download", "uploads", "status", "test", "staging", "dev", "development", "prod",
		"production", "preview", "demo", "beta", "alpha", "public", "private", "secure",
		"auth", "login", "logout", "signup", "register", "account", "profile", "settings",
		"config", "console", "panel", "control", "manage", "management", "client",
		"customer", "user", "users", "tenant", "tenants", "subdomain", "subdomains",
		"s", "ns", "dns", "mx", "smtp", "pop", "imap", "webmail", "calendar", "cal",
		"meet", "video", "chat", "forum", "community", "social", "network",
	} {
		reservedSubdomains[s] = struct{}{}
	}
}

// IsReservedSubdomain reports whether s cannot be claimed by a tenant
func IsReservedSubdomain(s string) bool {
	_, ok := reservedSubdomains[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// TenantName validates a display name
func TenantName(name string) error {
	trimmed := strings.TrimSpace(name)
	n := utf8.RuneCountInString(trimmed)
	switch {
	case n == 0:
		return ErrNameRequired
	case n < MinTenantNameLength:
		return ErrNameTooShort
	case n > MaxTenantNameLength:
		return ErrNameTooLong
	}
	return nil
}

// Subdomain validates a subdomain label. It does not lower-case its input;
// callers normalize first with NormalizeSubdomain.
func Subdomain(subdomain string) error {
	trimmed := strings.TrimSpace(subdomain)
	switch {
	case trimmed == "":
		return ErrSubdomainEmpty
	case len(trimmed) < MinSubdomainLength:
		return ErrSubdomainShort
	case len(trimmed) > MaxSubdomainLength:
		return ErrSubdomainLong
	case !subdomainPattern.MatchString(trimmed):
		return ErrSubdomainChars
	case strings.HasPrefix(trimmed, "-") || strings.HasSuffix(trimmed, "-"):
		return ErrSubdomainHyphen
	case strings.Contains(trimmed, "--"):
		return ErrSubdomainDouble
	case IsReservedSubdomain(trimmed):
		return ErrSubdomainReserved
	}
	return nil
}

// NormalizeSubdomain trims and lower-cases a subdomain
func NormalizeSubdomain(subdomain string) string {
	return strings.ToLower(strings.TrimSpace(subdomain))
}

// Emoji validates a tenant icon
func Emoji(emoji string) error {
	trimmed := strings.TrimSpace(emoji)
	switch {
	case trimmed == "":
		return ErrEmojiRequired
	case utf8.RuneCountInString(trimmed) > MaxEmojiLength:
		return ErrEmojiTooLong
	}
	for _, r := range trimmed {
		if isEmoji(r) {
			return nil
		}
	}
	return ErrEmojiInvalid
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x2B00 && r <= 0x2BFF:
		return true
	}
	return unicode.Is(unicode.So, r)
}
