package analyzer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var executableExts = []string{".exe", ".apk", ".dex"}

// FileBundle holds the attributes extracted from a file hash or name.
type FileBundle struct {
	Value          string
	Length         int
	InBlacklist    bool
	BlacklistTrust float64
	IsAPK          bool
	IsExecutable   bool
}

func (b *FileBundle) Kind() domain.InputKind { return domain.KindFile }
func (b *FileBundle) Raw() string { return b.Value }
func (b *FileBundle) Blacklisted() (bool, float64) { return b.InBlacklist, b.BlacklistTrust }

func (b *FileBundle) Attributes() map[string]any {
	return map[string]any{
		"length":          b.Length,
		"in_blacklist":    b.InBlacklist,
		"blacklist_trust": b.BlacklistTrust,
		"is_apk":          b.IsAPK,
		"is_executable":   b.IsExecutable,
	}
}

// FileDetector scores file hashes and file names.
type FileDetector struct{}

func (FileDetector) Kind() domain.InputKind { return domain.KindFile }
func (FileDetector) UsesBlacklist() bool { return true }
func (FileDetector) UsesModel() bool { return false }
func (FileDetector) Benign() string { return "No known threats detected" }

func (FileDetector) Extract(raw string, hit Hit) Bundle {
	lower := strings.ToLower(raw)
	b := &FileBundle{
		Value:       raw,
		Length:      utf8.RuneCountInString(raw),
		InBlacklist: hit.Listed,
		IsAPK:       strings.HasSuffix(lower, ".apk"),
	}
	if hit.Listed {
		b.BlacklistTrust = hit.Trust
	}
	for _, ext := range executableExts {
		if strings.HasSuffix(lower, ext) {
			b.IsExecutable = true
		}
	}
	return b
}

func (FileDetector) Score(bundle Bundle) *Tally {
	t := newTally()
	b, ok := bundle.(*FileBundle)
	if !ok {
		return t
	}

	if b.InBlacklist {
		t.Add(0.4, fmt.Sprintf("File hash found in blacklist (trust: %.2f)", b.BlacklistTrust))
	}
	if b.IsAPK {
		t.Add(0.1, "APK file - verify source before installing")
	}
	if b.IsExecutable {
		t.Add(0.1, "Executable file type detected")
	}
	return t
}
