package analyzer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	smsURLPattern   = regexp.MustCompile(`(?i)https?://|www\.`)
	smsPhonePattern = regexp.MustCompile(`\+?\d{10,}`)

	urgencyWords    = []string{"urgent", "immediately", "now", "hurry", "limited time", "expire", "act now"}
	moneyWords      = []string{"loan", "credit", "money", "cash", "prize", "won", "winner", "claim", "reward"}
	suspiciousWords = []string{"rummy", "betting", "casino", "lottery", "verify account", "suspended", "confirm"}
)

// SMSBundle holds the attributes extracted from a text message.
type SMSBundle struct {
	Value         string
	Length        int
	HasURL        bool
	HasPhone      bool
	UrgencyWords  int
	MoneyWords    int
	HasSuspicious bool
}

func (b *SMSBundle) Kind() domain.InputKind { return domain.KindSMS }
func (b *SMSBundle) Raw() string { return b.Value }
func (b *SMSBundle) Blacklisted() (bool, float64) { return false, 0 }

func (b *SMSBundle) Attributes() map[string]any {
	return map[string]any{
		"length":                  b.Length,
		"has_url":                 b.HasURL,
		"has_phone":               b.HasPhone,
		"urgency_words":           b.UrgencyWords,
		"money_words":             b.MoneyWords,
		"has_suspicious_keywords": b.HasSuspicious,
	}
}

// SMSDetector scores message text. Messages are never looked up in the blacklist.
type SMSDetector struct{}

func (SMSDetector) Kind() domain.InputKind { return domain.KindSMS }
func (SMSDetector) UsesBlacklist() bool { return false }
func (SMSDetector) UsesModel() bool { return false }
func (SMSDetector) Benign() string { return "Message appears legitimate" }

func (SMSDetector) Extract(raw string, _ Hit) Bundle {
	lower := strings.ToLower(raw)
	return &SMSBundle{
		Value:         raw,
		Length:        utf8.RuneCountInString(raw),
		HasURL:        smsURLPattern.MatchString(raw),
		HasPhone:      smsPhonePattern.MatchString(raw),
		UrgencyWords:  countKeywords(lower, urgencyWords),
		MoneyWords:    countKeywords(lower, moneyWords),
		HasSuspicious: countKeywords(lower, suspiciousWords) > 0,
	}
}

func (SMSDetector) Score(bundle Bundle) *Tally {
	t := newTally()
	b, ok := bundle.(*SMSBundle)
	if !ok {
		return t
	}

	if b.HasSuspicious {
		t.Add(0.3, "Contains known scam keywords")
	}
	if b.UrgencyWords >= 2 {
		t.Add(0.2, fmt.Sprintf("High urgency language (%d urgency words)", b.UrgencyWords))
	}
	if b.MoneyWords >= 2 {
		t.Add(0.2, fmt.Sprintf("Financial/prize language detected (%d money-related words)", b.MoneyWords))
	}
	if b.HasURL && b.UrgencyWords > 0 {
		t.Add(0.15, "Combination of URL and urgency tactics")
	}
	return t
}

// countKeywords counts how many keywords occur in text at least once.
func countKeywords(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}
