package normalize

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// rule is one ordered rewrite. Either replace (with $n group references) or
// fn is used.
type rule struct {
	name    string
	re      *regexp2.Regexp
	replace string
	fn      regexp2.MatchEvaluator
}

func newRule(name, pattern, replace string) rule {
	return rule{name: name, re: regexp2.MustCompile(pattern, regexp2.None), replace: replace}
}

func newFuncRule(name, pattern string, fn regexp2.MatchEvaluator) rule {
	return rule{name: name, re: regexp2.MustCompile(pattern, regexp2.None), fn: fn}
}

// apply rewrites s; on a matcher error s is returned unchanged
func (r rule) apply(s string) string {
	var (
		out string
		err error
	)
	if r.fn != nil {
		out, err = r.re.ReplaceFunc(s, r.fn, -1, -1)
	} else {
		out, err = r.re.Replace(s, r.replace, -1, -1)
	}
	if err != nil {
		return s
	}
	return out
}

func applyAll(s string, rules []rule) string {
	for _, r := range rules {
		s = r.apply(s)
	}
	return s
}

func group(m regexp2.Match, n int) string {
	g := m.GroupByNumber(n)
	if g == nil {
		return ""
	}
	return g.String()
}

// pad2 left-pads a one digit number with a zero
func pad2(s string) string {
	if len([]rune(s)) == 1 {
		return "0" + s
	}
	return s
}

// groupThousands inserts commas every three digits from the right
func groupThousands(digits string) string {
	rs := []rune(digits)
	if len(rs) <= 3 {
		return digits
	}
	var sb strings.Builder
	lead := len(rs) % 3
	if lead > 0 {
		sb.WriteString(string(rs[:lead]))
	}
	for i := lead; i < len(rs); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(string(rs[i : i+3]))
	}
	return sb.String()
}

// prefixAmount formats "<symbol><digits>" amounts, group 1 being the digits
func prefixAmount(symbol string) regexp2.MatchEvaluator {
	return func(m regexp2.Match) string {
		return symbol + groupThousands(group(m, 1))
	}
}

// suffixAmount formats "<digits><unit>" amounts, group 1 being the digits
func suffixAmount(sep, unit string) regexp2.MatchEvaluator {
	return func(m regexp2.Match) string {
		return groupThousands(group(m, 1)) + sep + unit
	}
}

const (
	// bare runs of four or more digits not inside a larger number
	bareDigits  = `(?<![\d,.])(\d{4,})(?![\d,])`
	trailDigits = `(\d{4,})(?![\d,])`
)

var emailRule = newFuncRule("email",
	`([A-Za-z0-9_.+-]+)@([A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)*\.[A-Za-z]{2,})`,
	func(m regexp2.Match) string {
		return group(m, 1) + "@" + strings.ToLower(group(m, 2))
	})

// businessRules are the document-format corrections per language, applied
// in order after the language stage
var businessRules = map[string][]rule{
	"jpn": {
		newFuncRule("date", `(?<!\d)(\d{4})年(\d{1,2})月(\d{1,2})日`, func(m regexp2.Match) string {
			return group(m, 1) + "年" + pad2(group(m, 2)) + "月" + pad2(group(m, 3)) + "日"
		}),
		newFuncRule("era date", `(令和|平成|昭和)(\d{1,2})年(\d{1,2})月(\d{1,2})日`, func(m regexp2.Match) string {
			return group(m, 1) + group(m, 2) + "年" + pad2(group(m, 3)) + "月" + pad2(group(m, 4)) + "日"
		}),
		newFuncRule("yen prefix", `[¥￥]\s*`+trailDigits, prefixAmount("¥")),
		newFuncRule("yen suffix", bareDigits+`\s*円`, suffixAmount("", "円")),
		newRule("company", `株式含社|株式会杜|株式會社`, "株式会社"),
		newRule("company", `有恨会社`, "有限会社"),
		newRule("company", `含同会社`, "合同会社"),
		newRule("postcode", `〒\s*(\d{3})\s*[-−‐ー]\s*(\d{4})`, "〒$1-$2"),
	},
	"kor": {
		newFuncRule("date", `(?<!\d)(\d{4})년\s*(\d{1,2})월\s*(\d{1,2})일`, func(m regexp2.Match) string {
			return group(m, 1) + "년 " + pad2(group(m, 2)) + "월 " + pad2(group(m, 3)) + "일"
		}),
		newFuncRule("iso date", `(?<![\d.])(\d{4})[./-](\d{1,2})[./-](\d{1,2})(?!\d)`, func(m regexp2.Match) string {
			return group(m, 1) + "-" + pad2(group(m, 2)) + "-" + pad2(group(m, 3))
		}),
		newFuncRule("won prefix", `₩\s*`+trailDigits, prefixAmount("₩")),
		newFuncRule("won suffix", bareDigits+`\s*원`, suffixAmount("", "원")),
		newRule("company", `주\s*식\s*회\s*사`, "주식회사"),
		newRule("company", `\(\s*주\s*\)`, "(주)"),
		newRule("registration", `(?<![\d-])(\d{3})\s*[-−]?\s*(\d{2})\s*[-−]?\s*(\d{5})(?![\d-])`, "$1-$2-$3"),
	},
	"eng": {
		newRule("month date", `\b([A-Z][a-z]{2})\s+(\d),\s+(\d{4})\b`, "$1 0$2, $3"),
		newFuncRule("slash date", `(?<![\d/])(\d{1,2})/(\d{1,2})/(\d{4})(?!\d)`, func(m regexp2.Match) string {
			return pad2(group(m, 1)) + "/" + pad2(group(m, 2)) + "/" + group(m, 3)
		}),
		newFuncRule("dollar", `\$\s*`+trailDigits, prefixAmount("$")),
		newFuncRule("usd", bareDigits+`\s*USD\b`, suffixAmount(" ", "USD")),
		newRule("company", `\bInc\b\.?`, "Inc."),
		newRule("company", `\bCorp\b\.?`, "Corp."),
		newRule("company", `\bLtd\b\.?`, "Ltd."),
	},
	"chi_sim": chineseBusinessRules,
	"chi_tra": chineseBusinessRules,
}

var chineseBusinessRules = []rule{
	newFuncRule("date", `(?<!\d)(\d{4})年(\d{1,2})月(\d{1,2})日`, func(m regexp2.Match) string {
		return group(m, 1) + "年" + pad2(group(m, 2)) + "月" + pad2(group(m, 3)) + "日"
	}),
	newFuncRule("yuan prefix", `[¥￥]\s*`+trailDigits, prefixAmount("¥")),
	newFuncRule("yuan suffix", bareDigits+`\s*元`, suffixAmount("", "元")),
}

// ocrTerms fixes common English OCR misreads of legal-entity words
var ocrTerms = []rule{
	newRule("Ltd", `\bUd\.(?!\w)`, "Ltd."),
	newRule("Inc", `\bIne\.(?!\w)`, "Inc."),
	newRule("LLC", `\bIlc\b`, "LLC"),
	newRule("Ltd", `\bLld\.(?!\w)`, "Ltd."),
	newRule("limited", `\blimiled\b`, "limited"),
	newRule("corporation", `\bcorporalion\b`, "corporation"),
}
