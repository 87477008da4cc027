package perfume

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ─────────────────────────────────────────────────────────────────────────────
// Normalize
// ─────────────────────────────────────────────────────────────────────────────

// cases.Caser keeps state and is not safe for concurrent use.
var lowerPool = sync.Pool{New: func() interface{} { return cases.Lower(language.Und) }}

func lower(s string) string {
	c := lowerPool.Get().(cases.Caser)
	out := c.String(s)
	lowerPool.Put(c)
	return out
}

// Normalize lowercases s (full Unicode mapping), trims it and collapses every
// interior whitespace run to one space.  It is idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(lower(s)), " ")
}

// NormalizeValue is Normalize over an arbitrary value: only strings (and
// non-nil string pointers) are text; everything else maps to "".
func NormalizeValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return Normalize(t)
	case *string:
		if t != nil {
			return Normalize(*t)
		}
	}
	return ""
}

var nonSlugRun = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify normalizes s and replaces every run of characters outside [a-z0-9]
// with a single hyphen, trimming hyphens at both ends.
func Slugify(s string) string {
	return strings.Trim(nonSlugRun.ReplaceAllString(Normalize(s), "-"), "-")
}

// ─────────────────────────────────────────────────────────────────────────────
// Note cleaning
// ─────────────────────────────────────────────────────────────────────────────

// DefaultQualifiers are marketing qualifiers that never carry olfactory
// meaning and are always stripped from notes.
var DefaultQualifiers = []string{
	"absolute", "scenttrek", "orpur", "co2", "concrete",
	"otto", "nectar", "material", "resinoid", "oxide",
}

// DefaultPrefixes are origin phrases stripped from notes before qualifiers.
var DefaultPrefixes = []string{"La Réunion"}

// NoteCleanerConfig is the vocabulary of a NoteCleaner.  Nil slices select
// the defaults; an empty non-nil slice disables the step.
type NoteCleanerConfig struct {
	Prefixes   []string
	Qualifiers []string
}

// NoteCleaner strips decoration from single note strings.  It is immutable
// after construction and safe for concurrent use.
type NoteCleaner struct {
	prefixes   phraseStripper
	qualifiers phraseStripper
}

var (
	trademarkGlyphs = strings.NewReplacer("™", "", "®", "")
	parenthetical   = regexp.MustCompile(`\(.*?\)`)

	defaultCleanerOnce sync.Once
	defaultCleaner     *NoteCleaner
)

// NewNoteCleaner builds a cleaner.  Qualifiers are matched longest first so a
// multi-word qualifier is never shadowed by one of its words.
func NewNoteCleaner(cfg NoteCleanerConfig) *NoteCleaner {
	if cfg.Prefixes == nil {
		cfg.Prefixes = DefaultPrefixes
	}
	if cfg.Qualifiers == nil {
		cfg.Qualifiers = DefaultQualifiers
	}
	return &NoteCleaner{
		prefixes:   newPhraseStripper(cfg.Prefixes),
		qualifiers: newPhraseStripper(cfg.Qualifiers),
	}
}

// DefaultNoteCleaner returns the shared cleaner built from the defaults.
func DefaultNoteCleaner() *NoteCleaner {
	defaultCleanerOnce.Do(func() {
		defaultCleaner = NewNoteCleaner(NoteCleanerConfig{})
	})
	return defaultCleaner
}

// CleanNote cleans s with the default vocabulary.
func CleanNote(s string) string {
	return DefaultNoteCleaner().Clean(s)
}

// Clean applies, in order: trademark glyph removal, prefix removal,
// qualifier removal, parenthetical removal, whitespace collapse and removal
// of one trailing comma or hyphen.  Invalid UTF-8 bytes are dropped first.
// The result may be empty.
func (c *NoteCleaner) Clean(s string) string {
	t := strings.TrimSpace(strings.ToValidUTF8(s, ""))
	if t == "" {
		return ""
	}
	t = trademarkGlyphs.Replace(t)
	t = c.prefixes.strip(t)
	t = c.qualifiers.strip(t)
	t = parenthetical.ReplaceAllString(t, "")
	t = strings.Join(strings.Fields(t), " ")
	if strings.HasSuffix(t, ",") || strings.HasSuffix(t, "-") {
		t = strings.TrimSpace(t[:len(t)-1])
	}
	return t
}

// phraseStripper removes whole-word, case-insensitive occurrences of a
// phrase list.  Word boundaries are Unicode-aware: a letter with a diacritic
// counts as a word character.
type phraseStripper struct {
	phrases [][]rune
}

func newPhraseStripper(phrases []string) phraseStripper {
	out := make([][]rune, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, []rune(p))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return phraseStripper{phrases: out}
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

func boundaryAt(rs []rune, i int) bool {
	before := i > 0 && isWordRune(rs[i-1])
	after := i < len(rs) && isWordRune(rs[i])
	return before != after
}

func (p phraseStripper) strip(s string) string {
	if len(p.phrases) == 0 {
		return s
	}
	rs := []rune(s)
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(rs); {
		if n := p.matchAt(rs, i); n > 0 {
			i += n
			continue
		}
		sb.WriteRune(rs[i])
		i++
	}
	return sb.String()
}

// matchAt returns the rune length of the first phrase matching at i, or 0.
func (p phraseStripper) matchAt(rs []rune, i int) int {
	if !boundaryAt(rs, i) {
		return 0
	}
	for _, ph := range p.phrases {
		end := i + len(ph)
		if end > len(rs) || !boundaryAt(rs, end) {
			continue
		}
		if strings.EqualFold(string(rs[i:end]), string(ph)) {
			return len(ph)
		}
	}
	return 0
}
