package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raspverry/ai-ocr/internal/logging"
)

var samples = map[string]string{
	"jpn":     "株式含社テスト\n合計 ￥１０００\n2023年1月5日に発行しました。 よろしく﹅",
	"kor":     "삼성전자 주 식 회 사 를 방문했다.  금액은 1000000원 입니다!\n날짜 2023.1.5 등록번호 123 45 67890",
	"eng":     "acme Ine. shipped 1000 USD to john@Example.COM on 1/5/2023. thanks  a lot.\n\n\n\nbye",
	"chi_sim": "总金额１０００元。 谢谢﹅",
	"chi_tra": "總金額１０００元。  謝謝\r\n2024年3月7日",
}

func TestNormalize(t *testing.T) {
	n := New(logging.NewNop())
	testCases := []struct {
		lang string
		want string
	}{
		{"jpn", "株式会社テスト\n合計 ¥1,000\n2023年01月05日に発行しました。\nよろしく・"},
		{"kor", "삼성전자 주식회사를 방문했다.\n금액은 1,000,000원 입니다!\n날짜 2023-01-05 등록번호 123-45-67890"},
		{"eng", "Acme Inc. shipped 1,000 USD to john@example.com on 01/05/2023. Thanks a lot.\n\nBye"},
		{"chi_sim", "总金额1,000元。\n谢谢・"},
		{"chi_tra", "總金額1,000元。\n謝謝\n2024年03月07日"},
	}
	for _, tc := range testCases {
		t.Run(tc.lang, func(t *testing.T) {
			assert.Equal(t, tc.want, n.Normalize(samples[tc.lang], tc.lang))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n := New(logging.NewNop())
	for lang, text := range samples {
		t.Run(lang, func(t *testing.T) {
			once := n.Normalize(text, lang)
			assert.Equal(t, once, n.Normalize(once, lang))
		})
	}
}

func TestNormalizeLanguageAliases(t *testing.T) {
	n := New(logging.NewNop())
	assert.Equal(t, n.Normalize(samples["jpn"], "jpn"), n.Normalize(samples["jpn"], "ja-JP"))
}

func TestNormalizeCommonStagesOnly(t *testing.T) {
	n := New(logging.NewNop())
	got := n.Normalize("  bonjour\t\tle monde  \n\n\n\nMail: Paul@Exemple.FR ", "fra")
	assert.Equal(t, "bonjour le monde\n\nMail: Paul@exemple.fr", got)
	assert.Equal(t, "", n.Normalize("", "eng"))
	assert.Equal(t, "", n.Normalize(" \n\t ", "eng"))
}

func TestNormalizeComposesUnicode(t *testing.T) {
	n := New(logging.NewNop())
	// か + combining dakuten
	assert.Equal(t, "\u304c", n.Normalize("\u304b\u3099", "jpn"))
}

func TestNormalizeKeepsNumbersIntact(t *testing.T) {
	n := New(logging.NewNop())
	testCases := []struct {
		name, lang, in, want string
	}{
		{"decimal amount", "jpn", "単価 1234.5円", "単価 1234.5円"},
		{"already grouped", "eng", "Total $1,000.", "Total $1,000."},
		{"korean decimal", "kor", "비율 3.5 퍼센트", "비율 3.5 퍼센트"},
		{"long slash number", "eng", "Ref 11/1/20234", "Ref 11/1/20234"},
		{"abbreviation", "eng", "Acme Ltd is hiring", "Acme Ltd. is hiring"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, n.Normalize(tc.in, tc.lang))
		})
	}
}

func TestGroupThousands(t *testing.T) {
	assert.Equal(t, "999", groupThousands("999"))
	assert.Equal(t, "1,000", groupThousands("1000"))
	assert.Equal(t, "12,345,678", groupThousands("12345678"))
}

func TestExtractJapanese(t *testing.T) {
	n := New(logging.NewNop())
	text := "株式会社テスト\n〒100-0001 東京都千代田区1-1\n合計 ¥1,000\n2023年01月05日\nTEL 03-1234-5678\ninfo@test.co.jp"

	e := n.Extract(text, "jpn")
	assert.Equal(t, []string{"株式会社テスト"}, e.Companies)
	assert.Equal(t, []string{"〒100-0001 東京都千代田区1-1"}, e.Addresses)
	assert.Equal(t, []string{"¥1,000"}, e.Amounts)
	assert.Equal(t, []string{"2023年01月05日"}, e.Dates)
	assert.Equal(t, []string{"03-1234-5678"}, e.Phones)
	assert.Equal(t, []string{"info@test.co.jp"}, e.Emails)
	assert.False(t, e.Empty())
}

func TestExtractEnglish(t *testing.T) {
	n := New(logging.NewNop())
	text := "Acme Widgets Inc. can be reached at sales@acme.com or +1 415-555-0100.\n" +
		"Invoice total $12,500.00 due Jan 05, 2024. Reminder: $12,500.00 due.\n" +
		"Ship to 221 Baker Street, London"

	e := n.Extract(text, "en")
	assert.Equal(t, []string{"Acme Widgets Inc."}, e.Companies)
	assert.Equal(t, []string{"$12,500.00"}, e.Amounts, "duplicates are kept once")
	assert.Equal(t, []string{"Jan 05, 2024"}, e.Dates)
	assert.Equal(t, []string{"+1 415-555-0100"}, e.Phones)
	assert.Equal(t, []string{"sales@acme.com"}, e.Emails)
	assert.Equal(t, []string{"221 Baker Street, London"}, e.Addresses)
}

func TestExtractKoreanAndChinese(t *testing.T) {
	n := New(logging.NewNop())

	kor := n.Extract("삼성전자 주식회사\n2023년 01월 05일 금액 ₩1,000,000", "kor")
	assert.Contains(t, kor.Companies, "삼성전자 주식회사")
	assert.Equal(t, []string{"2023년 01월 05일"}, kor.Dates)
	assert.Equal(t, []string{"₩1,000,000"}, kor.Amounts)

	chi := n.Extract("北京科技有限公司 2024年03月07日 合计 1,000元", "zh-CN")
	assert.Equal(t, []string{"北京科技有限公司"}, chi.Companies)
	assert.Equal(t, []string{"2024年03月07日"}, chi.Dates)
	assert.Equal(t, []string{"1,000元"}, chi.Amounts)
}

func TestExtractNothing(t *testing.T) {
	e := New(logging.NewNop()).Extract("", "eng")
	assert.True(t, e.Empty())
	assert.NotNil(t, e.Companies)
}

func TestSplitSentences(t *testing.T) {
	testCases := []struct {
		name, lang, text string
		want             []string
	}{
		{"japanese", "jpn", "今日は晴れ。明日は雨！\nそうですか？", []string{"今日は晴れ。", "明日は雨！", "そうですか？"}},
		{"english", "eng", "Pay $3.50 now. Thanks! ok", []string{"Pay $3.50 now.", "Thanks!", "ok"}},
		{"korean", "kor", "안녕하세요. 반갑습니다!", []string{"안녕하세요.", "반갑습니다!"}},
		{"chinese", "chi_sim", "你好。再见！", []string{"你好。", "再见！"}},
		{"punctuation only", "eng", "... !", nil},
		{"unknown language", "fra", "Bonjour. Salut", []string{"Bonjour.", "Salut"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SplitSentences(tc.text, tc.lang))
		})
	}
}
