package analyzer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// PhoneBundle holds the attributes extracted from a phone number.
type PhoneBundle struct {
	Value             string
	Digits            int
	HasCountryCode    bool
	InBlacklist       bool
	BlacklistTrust    float64
	IsPremium         bool
	IsShortcode       bool
	SuspiciousPattern bool
	RepeatedDigits    int
	CountryCode       string
	IsValid           bool
}

func (b *PhoneBundle) Kind() domain.InputKind { return domain.KindPhone }
func (b *PhoneBundle) Raw() string { return b.Value }
func (b *PhoneBundle) Blacklisted() (bool, float64) { return b.InBlacklist, b.BlacklistTrust }

func (b *PhoneBundle) Attributes() map[string]any {
	return map[string]any{
		"length":                 b.Digits,
		"has_country_code":       b.HasCountryCode,
		"in_blacklist":           b.InBlacklist,
		"blacklist_trust":        b.BlacklistTrust,
		"is_premium":             b.IsPremium,
		"is_shortcode":           b.IsShortcode,
		"has_suspicious_pattern": b.SuspiciousPattern,
		"repeated_digits":        b.RepeatedDigits,
		"country_code":           b.CountryCode,
		"is_valid":               b.IsValid,
	}
}

// PhoneDetector scores phone numbers.
type PhoneDetector struct{}

func (PhoneDetector) Kind() domain.InputKind { return domain.KindPhone }
func (PhoneDetector) UsesBlacklist() bool { return true }
func (PhoneDetector) UsesModel() bool { return true }
func (PhoneDetector) Benign() string { return "No major red flags detected" }

func (PhoneDetector) Extract(raw string, hit Hit) Bundle {
	digits := digitsOnly(raw)
	b := &PhoneBundle{
		Value:          raw,
		Digits:         len(digits),
		HasCountryCode: strings.HasPrefix(raw, "+"),
		InBlacklist:    hit.Listed,
	}
	if hit.Listed {
		b.BlacklistTrust = hit.Trust
	}

	b.CountryCode, b.IsValid = parsePhone(raw)

	b.IsPremium = strings.HasPrefix(digits, "900") || strings.HasPrefix(digits, "1900")
	b.IsShortcode = b.Digits >= 3 && b.Digits <= 6

	// Later digits overwrite earlier ones when several qualify.
	for d := '0'; d <= '9'; d++ {
		count := strings.Count(digits, string(d))
		if 2*count > b.Digits {
			b.RepeatedDigits = count
			b.SuspiciousPattern = true
		}
	}

	return b
}

func (PhoneDetector) Score(bundle Bundle) *Tally {
	t := newTally()
	b, ok := bundle.(*PhoneBundle)
	if !ok {
		return t
	}

	if b.InBlacklist {
		t.Add(0.4, fmt.Sprintf("Found in blacklist (trust: %.2f)", b.BlacklistTrust))
	}
	if b.IsPremium {
		t.Add(0.3, "Premium rate number (900/1900 prefix) - high scam risk")
	}
	if !b.IsValid {
		t.Add(0.2, "Invalid phone number format")
	}
	if b.SuspiciousPattern {
		t.Add(0.15, fmt.Sprintf("Suspicious pattern detected (%d repeated digits)", b.RepeatedDigits))
	}
	if b.IsShortcode && !b.IsValid {
		t.Add(0.1, "Unusual short code format")
	}
	return t
}

// parsePhone parses raw without a default region, so numbers lacking an
// international prefix fail to parse.
func parsePhone(raw string) (countryCode string, valid bool) {
	defer func() {
		if r := recover(); r != nil {
			countryCode, valid = "", false
		}
	}()

	num, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return "", false
	}
	return strconv.Itoa(int(num.GetCountryCode())), phonenumbers.IsValidNumber(num)
}

func digitsOnly(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}
