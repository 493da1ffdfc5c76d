package engine

import "strings"

// Canonical language codes
const (
	LangJapanese           = "jpn"
	LangEnglish            = "eng"
	LangKorean             = "kor"
	LangChineseSimplified  = "chi_sim"
	LangChineseTraditional = "chi_tra"
)

var languageAliases = map[string]string{
	"ja":      LangJapanese,
	"ja-jp":   LangJapanese,
	"en":      LangEnglish,
	"en-us":   LangEnglish,
	"en-gb":   LangEnglish,
	"ko":      LangKorean,
	"ko-kr":   LangKorean,
	"zh":      LangChineseSimplified,
	"zh-cn":   LangChineseSimplified,
	"zh-hans": LangChineseSimplified,
	"zh-sg":   LangChineseSimplified,
	"zh-tw":   LangChineseTraditional,
	"zh-hk":   LangChineseTraditional,
	"zh-hant": LangChineseTraditional,
}

// NormalizeLanguage maps ISO 639-1 and cloud API language tags to the
// Tesseract-style codes used throughout the worker. Unknown codes are
// lower-cased and passed through; an empty code stays empty.
func NormalizeLanguage(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	c = strings.ReplaceAll(c, "_", "-")
	if mapped, ok := languageAliases[c]; ok {
		return mapped
	}
	return strings.ReplaceAll(c, "-", "_")
}

// IsCJK reports whether text in the language is written without spaces
// between words
func IsCJK(language string) bool {
	switch NormalizeLanguage(language) {
	case LangJapanese, LangChineseSimplified, LangChineseTraditional:
		return true
	}
	return false
}

// bcp47 returns the tag cloud services expect for a canonical code, "" when unknown
func bcp47(language string) string {
	switch NormalizeLanguage(language) {
	case LangJapanese:
		return "ja"
	case LangEnglish:
		return "en"
	case LangKorean:
		return "ko"
	case LangChineseSimplified:
		return "zh-Hans"
	case LangChineseTraditional:
		return "zh-Hant"
	}
	return ""
}
