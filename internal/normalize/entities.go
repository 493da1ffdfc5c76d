package normalize

import (
	"sort"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/raspverry/ai-ocr/internal/engine"
)

// Entities are business values found in page text, each list deduplicated
// in order of first appearance
type Entities struct {
	Companies []string `json:"companies"`
	Dates     []string `json:"dates"`
	Amounts   []string `json:"amounts"`
	Emails    []string `json:"emails"`
	Phones    []string `json:"phones"`
	Addresses []string `json:"addresses"`
}

// Empty reports whether nothing was found
func (e *Entities) Empty() bool {
	return len(e.Companies)+len(e.Dates)+len(e.Amounts)+len(e.Emails)+len(e.Phones)+len(e.Addresses) == 0
}

func compileAll(patterns ...string) []*regexp2.Regexp {
	out := make([]*regexp2.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp2.MustCompile(p, regexp2.None)
	}
	return out
}

const amountNumber = `\d{1,3}(?:,\d{3})*(?:\.\d+)?`

type entityPatterns struct {
	companies []*regexp2.Regexp
	dates     []*regexp2.Regexp
	amounts   []*regexp2.Regexp
	addresses []*regexp2.Regexp
}

var (
	emailPatterns = compileAll(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePatterns = compileAll(
		`\+\d{1,3}[\s-]?\(?\d{1,4}\)?[\s-]?\d{1,4}[\s-]?\d{1,4}`,
		`(?<![\d-])\(?0\d{1,4}\)?[\s-]\d{1,4}-\d{3,4}(?![\d-])`,
	)

	languageEntities = map[string]entityPatterns{
		"jpn": {
			companies: compileAll(
				`(?:株式会社|合同会社|有限会社)\s?[^\s・（()、。]{1,20}`,
				`[㐀-鿿゠-ヿA-Za-z0-9]{1,20}(?:株式会社|合同会社|有限会社)`,
			),
			dates: compileAll(
				`(?:令和|平成|昭和)\d{1,2}年\d{1,2}月\d{1,2}日`,
				`\d{4}年\d{1,2}月\d{1,2}日`,
				`(?<!\d)\d{4}/\d{1,2}/\d{1,2}(?!\d)`,
			),
			amounts: compileAll(
				`¥\s*`+amountNumber,
				`(?<![\d,.])`+amountNumber+`\s*円`,
			),
			addresses: compileAll(
				`〒\d{3}-\d{4}[^\n]*`,
				`(?:東京都|北海道|京都府|大阪府|[一-鿿]{2,3}県)[^\s、。]+`,
			),
		},
		"kor": {
			companies: compileAll(
				`주식회사[ \t]*[^\s,]{1,20}`,
				`[^\s,(]{1,20}[ \t]*주식회사`,
				`\(주\)[ \t]*[^\s,]{1,20}`,
				`[^\s,(]{1,20}[ \t]*\(주\)`,
			),
			dates: compileAll(
				`\d{4}년\s*\d{1,2}월\s*\d{1,2}일`,
				`(?<!\d)\d{4}[-.]\d{1,2}[-.]\d{1,2}(?!\d)`,
			),
			amounts: compileAll(
				`₩\s*`+amountNumber,
				`(?<![\d,.])`+amountNumber+`\s*원`,
			),
			addresses: compileAll(
				`[가-힣]+(?:특별시|광역시|특별자치시|도|시)\s+[가-힣]+(?:구|군|시)[^\n]*`,
			),
		},
		"eng": {
			companies: compileAll(
				`\b[A-Z][A-Za-z0-9&]*(?:\s+[A-Z][A-Za-z0-9&]*)*,?\s+(?:Inc|Corp|LLC|Ltd|LLP|Limited|Corporation|Company)\b\.?`,
			),
			dates: compileAll(
				`\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2},\s+\d{4}`,
				`\b\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{4}`,
				`(?<![\d/])\d{1,2}/\d{1,2}/\d{4}(?!\d)`,
				`(?<!\d)\d{4}-\d{1,2}-\d{1,2}(?!\d)`,
			),
			amounts: compileAll(
				`\$\s*`+amountNumber,
				`USD\s*`+amountNumber,
				`(?<![\d,.])`+amountNumber+`\s*USD\b`,
			),
			addresses: compileAll(
				`\b\d{1,5}\s+(?:[A-Z][a-z]+\s+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr)\b\.?[^\n]*`,
			),
		},
	}

	chineseEntities = entityPatterns{
		companies: compileAll(`[一-鿿]{2,20}(?:有限公司|公司|集团|集團)`),
		dates:     compileAll(`\d{4}年\d{1,2}月\d{1,2}日`),
		amounts: compileAll(
			`¥\s*`+amountNumber,
			`(?<![\d,.])`+amountNumber+`\s*元`,
		),
		addresses: compileAll(`[一-鿿]{2,}(?:省|市)[一-鿿\d]*(?:区|區|县|縣|路|街|号|號)[^\s，。]*`),
	}
)

type span struct {
	start, end int
	text       string
}

// findAll collects the matches of every pattern, ordered by position. A
// match overlapping an earlier accepted one is dropped, and equal texts are
// kept once.
func findAll(text string, patterns []*regexp2.Regexp) []string {
	var spans []span
	for _, re := range patterns {
		m, err := re.FindStringMatch(text)
		for err == nil && m != nil {
			if s := strings.TrimSpace(m.String()); s != "" {
				spans = append(spans, span{start: m.Index, end: m.Index + m.Length, text: s})
			}
			m, err = re.FindNextMatch(m)
		}
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	out := []string{}
	seen := make(map[string]bool)
	lastEnd := -1
	for _, sp := range spans {
		if sp.start < lastEnd {
			continue
		}
		lastEnd = sp.end
		if seen[sp.text] {
			continue
		}
		seen[sp.text] = true
		out = append(out, sp.text)
	}
	return out
}

// Extract finds companies, dates, amounts, e-mail addresses, phone numbers
// and addresses. Emails and phones are language independent.
func (n *Normalizer) Extract(text, language string) *Entities {
	lang := engine.NormalizeLanguage(language)
	patterns, ok := languageEntities[lang]
	if !ok && (lang == engine.LangChineseSimplified || lang == engine.LangChineseTraditional) {
		patterns = chineseEntities
	}
	return &Entities{
		Companies: findAll(text, patterns.companies),
		Dates:     findAll(text, patterns.dates),
		Amounts:   findAll(text, patterns.amounts),
		Emails:    findAll(text, emailPatterns),
		Phones:    findAll(text, phonePatterns),
		Addresses: findAll(text, patterns.addresses),
	}
}
