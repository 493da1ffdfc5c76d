package normalize

import (
	"strings"
	"unicode"

	"github.com/raspverry/ai-ocr/internal/engine"
)

// terminators end a sentence; spaced terminators only do so when followed
// by whitespace or the end of text
type terminators struct {
	always string
	spaced string
}

var sentenceEnds = map[string]terminators{
	engine.LangJapanese:           {always: "。．！？", spaced: "!?"},
	engine.LangChineseSimplified:  {always: "。！？", spaced: "!?"},
	engine.LangChineseTraditional: {always: "。！？", spaced: "!?"},
	engine.LangKorean:             {spaced: ".!?"},
	engine.LangEnglish:            {spaced: ".!?"},
}

// SplitSentences splits text into trimmed sentences. Line breaks also end
// a sentence; fragments without letters or digits are dropped. Unknown
// languages use the English rules.
func SplitSentences(text, language string) []string {
	ends, ok := sentenceEnds[engine.NormalizeLanguage(language)]
	if !ok {
		ends = sentenceEnds[engine.LangEnglish]
	}

	var (
		out     []string
		current strings.Builder
	)
	flush := func() {
		s := strings.TrimSpace(current.String())
		current.Reset()
		if s != "" && hasLetters(s) {
			out = append(out, s)
		}
	}

	rs := []rune(text)
	for i, r := range rs {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		switch {
		case strings.ContainsRune(ends.always, r):
			flush()
		case strings.ContainsRune(ends.spaced, r):
			if i+1 == len(rs) || unicode.IsSpace(rs[i+1]) {
				flush()
			}
		}
	}
	flush()
	return out
}
