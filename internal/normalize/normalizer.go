/**
 * Text normalization for recognized pages
 *
 * Stages, in order:
 * - Unicode NFC composition
 * - whitespace and line-break collapsing
 * - e-mail domain lower-casing
 * - language rules (width folding, punctuation, sentence breaks)
 * - business-document rules (dates, amounts, legal entities, postal codes)
 *
 * The chain is reapplied until the text stops changing, so normalizing
 * normalized text is a no-op.
 */

package normalize

import (
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/raspverry/ai-ocr/internal/engine"
	"github.com/raspverry/ai-ocr/internal/logging"
)

const maxPasses = 5

// Normalizer cleans up recognized text per language
type Normalizer struct {
	logger *logging.Logger
}

// New creates a normalizer
func New(logger *logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.NewLogger("Normalizer")
	}
	return &Normalizer{logger: logger}
}

// Normalize returns the cleaned text. Languages without dedicated rules get
// the common stages only.
func (n *Normalizer) Normalize(text, language string) string {
	lang := engine.NormalizeLanguage(language)
	out := text
	for pass := 0; pass < maxPasses; pass++ {
		next := n.normalizeOnce(out, lang)
		if next == out {
			return out
		}
		out = next
	}
	n.logger.Debug("Normalization did not settle", "language", lang, "passes", maxPasses)
	return out
}

func (n *Normalizer) normalizeOnce(text, lang string) string {
	if text == "" {
		return ""
	}
	s := norm.NFC.String(text)
	s = collapseWhitespace(s)
	s = emailRule.apply(s)

	switch lang {
	case engine.LangJapanese:
		s = japanese(s)
	case engine.LangKorean:
		s = korean(s)
	case engine.LangEnglish:
		s = english(s)
	case engine.LangChineseSimplified, engine.LangChineseTraditional:
		s = chinese(s)
	}

	s = applyAll(s, businessRules[lang])
	return collapseWhitespace(s)
}

// collapseWhitespace turns CRLF into LF, runs of spaces and tabs into one
// space, trims every line and keeps at most one blank line in a row
func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, isHorizontalSpace), " ")
		line = strings.TrimSpace(line)
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func isHorizontalSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\v' || r == '\f'
}

var (
	sesameDots = newRule("sesame dots", `[﹅﹆]`, "・")

	japaneseBreaks = newRule("sentence break", `(?<=[。．！？])\s*(?=\S)`, "\n")
	koreanBreaks   = newRule("sentence break", `(?<=[.!?])\s+(?=\S)`, "\n")
	chineseBreaks  = newRule("sentence break", `(?<=[。！？])\s*(?=\S)`, "\n")

	// particles written apart from the preceding word; longer forms first
	koreanParticles = newRule("particles",
		`([가-힣])\s+(으로|에서|을|를|이|가|은|는|의|에|로|도|만)(?![가-힣])`, "$1$2")

	// sentence starts, not counting periods of common abbreviations
	sentenceStart = newFuncRule("capitalize",
		`(^|(?<!\b(?:Inc|Corp|Ltd|Co|Mr|Mrs|Ms|Dr|St|No|vs|etc|e\.g|i\.e))[.!?]\s+)(\p{Ll})`,
		func(m regexp2.Match) string {
			return group(m, 1) + strings.ToUpper(group(m, 2))
		})
)

// foldDigits maps full-width digits to ASCII
var foldDigits = runes.Map(func(r rune) rune {
	if r >= '０' && r <= '９' {
		return r - '０' + '0'
	}
	return r
})

func transformString(t transform.Transformer, s string) string {
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// japanese breaks lines after sentence ends, then folds widths: full-width
// ASCII to ASCII, half-width katakana to full width
func japanese(s string) string {
	s = sesameDots.apply(s)
	s = japaneseBreaks.apply(s)
	return width.Fold.String(s)
}

func korean(s string) string {
	s = transformString(foldDigits, s)
	s = koreanParticles.apply(s)
	return koreanBreaks.apply(s)
}

func english(s string) string {
	s = applyAll(s, ocrTerms)
	return sentenceStart.apply(s)
}

func chinese(s string) string {
	s = transformString(foldDigits, s)
	s = sesameDots.apply(s)
	return chineseBreaks.apply(s)
}

// hasLetters reports whether s contains any letter or digit
func hasLetters(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
