package analyzer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"
	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ipPattern = regexp.MustCompile(`\d+\.\d+\.\d+\.\d+`)

	suspiciousTLDs = []string{".ru", ".cn", ".tk", ".ml", ".ga"}
	shorteners     = []string{"bit.ly", "tinyurl", "goo.gl", "t.co"}
)

// URLBundle holds the attributes extracted from a URL.
type URLBundle struct {
	Value          string
	Length         int
	InBlacklist    bool
	BlacklistTrust float64
	IsValid        bool
	HasIPAddress   bool
	SuspiciousTLD  bool
	IsHTTPS        bool
	SubdomainCount int
	HasShortener   bool
}

func (b *URLBundle) Kind() domain.InputKind { return domain.KindURL }
func (b *URLBundle) Raw() string { return b.Value }
func (b *URLBundle) Blacklisted() (bool, float64) { return b.InBlacklist, b.BlacklistTrust }

func (b *URLBundle) Attributes() map[string]any {
	return map[string]any{
		"length":             b.Length,
		"in_blacklist":       b.InBlacklist,
		"blacklist_trust":    b.BlacklistTrust,
		"is_valid":           b.IsValid,
		"has_ip_address":     b.HasIPAddress,
		"has_suspicious_tld": b.SuspiciousTLD,
		"is_https":           b.IsHTTPS,
		"subdomain_count":    b.SubdomainCount,
		"has_shortener":      b.HasShortener,
	}
}

// URLDetector scores links.
type URLDetector struct{}

func (URLDetector) Kind() domain.InputKind { return domain.KindURL }
func (URLDetector) UsesBlacklist() bool { return true }
func (URLDetector) UsesModel() bool { return false }
func (URLDetector) Benign() string { return "URL appears legitimate" }

func (URLDetector) Extract(raw string, hit Hit) Bundle {
	b := &URLBundle{
		Value:        raw,
		Length:       utf8.RuneCountInString(raw),
		InBlacklist:  hit.Listed,
		IsValid:      govalidator.IsURL(raw),
		HasIPAddress: ipPattern.MatchString(raw),
		IsHTTPS:      strings.HasPrefix(raw, "https://"),
	}
	if hit.Listed {
		b.BlacklistTrust = hit.Trust
	}

	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(raw, tld) {
			b.SuspiciousTLD = true
		}
	}
	for _, s := range shorteners {
		if strings.Contains(raw, s) {
			b.HasShortener = true
		}
	}

	if _, rest, found := strings.Cut(raw, "://"); found {
		host, _, _ := strings.Cut(rest, "/")
		b.SubdomainCount = strings.Count(host, ".")
	}

	return b
}

func (URLDetector) Score(bundle Bundle) *Tally {
	t := newTally()
	b, ok := bundle.(*URLBundle)
	if !ok {
		return t
	}

	if b.InBlacklist {
		t.Add(0.4, fmt.Sprintf("Found in blacklist (trust: %.2f)", b.BlacklistTrust))
	}
	if b.HasIPAddress {
		t.Add(0.2, "Uses IP address instead of domain name")
	}
	if b.SuspiciousTLD {
		t.Add(0.2, "Suspicious top-level domain")
	}
	if !b.IsHTTPS {
		t.Add(0.1, "Not using secure HTTPS protocol")
	}
	if b.HasShortener {
		t.Add(0.15, "URL shortener detected - destination unclear")
	}
	if b.SubdomainCount > 3 {
		t.Add(0.1, "Excessive subdomains detected")
	}
	return t
}
