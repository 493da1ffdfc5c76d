package engine

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

type hocrWord struct {
	text       string
	bbox       [4]int
	confidence float64
}

type hocrLine struct {
	words []hocrWord
}

var hocrLineClasses = []string{"ocr_line", "ocr_textfloat", "ocr_header", "ocr_caption"}

// parseHOCR collects the words of every hOCR line in document order. Words
// outside any line element form a line of their own.
func parseHOCR(data []byte) ([]hocrLine, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse hOCR: %w", err)
	}

	var lines []hocrLine
	var current *hocrLine
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			class := attr(n, "class")
			switch {
			case hasClass(class, hocrLineClasses...):
				lines = append(lines, hocrLine{})
				prev := current
				current = &lines[len(lines)-1]
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
				current = prev
				return
			case hasClass(class, "ocrx_word"):
				word := parseWord(n)
				if word.text == "" {
					return
				}
				if current == nil {
					lines = append(lines, hocrLine{words: []hocrWord{word}})
					return
				}
				current.words = append(current.words, word)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return lines, nil
}

func parseWord(n *html.Node) hocrWord {
	var sb strings.Builder
	var text func(*html.Node)
	text = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			text(c)
		}
	}
	text(n)

	w := hocrWord{text: strings.TrimSpace(sb.String())}
	props := parseTitle(attr(n, "title"))
	if box := props["bbox"]; len(box) >= 4 {
		for i := 0; i < 4; i++ {
			w.bbox[i], _ = strconv.Atoi(box[i])
		}
	}
	if conf := props["x_wconf"]; len(conf) > 0 {
		w.confidence, _ = strconv.ParseFloat(conf[0], 64)
	}
	return w
}

// parseTitle splits "bbox 1 2 3 4; x_wconf 95" into its properties
func parseTitle(title string) map[string][]string {
	props := make(map[string][]string)
	for _, part := range strings.Split(title, ";") {
		fields := strings.Fields(part)
		if len(fields) > 0 {
			props[fields[0]] = fields[1:]
		}
	}
	return props
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(class string, names ...string) bool {
	for _, c := range strings.Fields(class) {
		for _, name := range names {
			if c == name {
				return true
			}
		}
	}
	return false
}

// hocrText joins words with spaces and lines with newlines. Words written
// in scripts without inter-word spacing are joined directly.
func hocrText(lines []hocrLine) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if len(l.words) == 0 {
			continue
		}
		var sb strings.Builder
		for i, w := range l.words {
			if i > 0 {
				last, _ := utf8.DecodeLastRuneInString(l.words[i-1].text)
				first, _ := utf8.DecodeRuneInString(w.text)
				if !unspaced(last) || !unspaced(first) {
					sb.WriteByte(' ')
				}
			}
			sb.WriteString(w.text)
		}
		out = append(out, sb.String())
	}
	return strings.Join(out, "\n")
}

func unspaced(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) ||
		(r >= 0x3000 && r <= 0x303F) || (r >= 0xFF00 && r <= 0xFFEF)
}

// hocrConfidence is the mean confidence of words scored above zero, in [0,1]
func hocrConfidence(lines []hocrLine) float64 {
	var sum float64
	n := 0
	for _, l := range lines {
		for _, w := range l.words {
			if w.confidence > 0 {
				sum += w.confidence
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n) / 100
}

func hocrRegions(lines []hocrLine) []Region {
	var regions []Region
	for _, l := range lines {
		for _, w := range l.words {
			regions = append(regions, Region{Text: w.text, BBox: w.bbox, Confidence: w.confidence / 100})
		}
	}
	return regions
}
