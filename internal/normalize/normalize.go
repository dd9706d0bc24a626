// Package normalize чистит сырой текст OCR перед сопоставлением со словарем.
// Записи словаря через него никогда не проходят.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

// Маркеры шумовых строк: декоративный символ и фраза об ограничении использования
var noiseMarkers = []string{"※", "仅限能使用的", "武器类别"}

var symbolReplacer = strings.NewReplacer(
	"Ⅰ", "1", "ⅰ", "1",
	"十", "+", "⁺", "+",
	"[", "【", "]", "】",
	"(", "【", ")", "】",
	"{", "【", "}", "】",
	`"`, "", "'", "", "“", "", "”", "", "‘", "", "’", "",
	" ", "", "\t", "", "\r", "", "\u3000", "",
	",", "，", ":", "：", ";", "；",
)

// "+3 1 攻击" : OCR читает разделитель "|" как "1"
var separatorRepair = regexp.MustCompile(`(\+\d+)1([\x{4e00}-\x{9fa5}])`)

// Normalize возвращает канонический вид текста OCR. Функция чистая и
// детерминированная, переводы строк сохраняются.
func Normalize(text string) string {
	text = strings.Map(narrowDigits, text)
	text = symbolReplacer.Replace(text)
	text = separatorRepair.ReplaceAllString(text, "${1}|${2}")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line == "" || isNoise(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// narrowDigits сужает только полноширинные цифры и "＋"; остальные
// полноширинные знаки (（）。、「」) совпадают с записями словаря
func narrowDigits(r rune) rune {
	if (r >= '０' && r <= '９') || r == '＋' {
		return width.LookupRune(r).Narrow()
	}
	return r
}

func isNoise(line string) bool {
	for _, marker := range noiseMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// SplitEntries делит нормализованный текст на записи по "|" и переводам строк
func SplitEntries(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '|' || r == '\n'
	})
	entries := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			entries = append(entries, f)
		}
	}
	return entries
}

const leadingNoise = "万了可\"'“”‘’ \u3000"

// StripLeadingNoise убирает мусорные символы, которые OCR приклеивает к
// началу перенесенной строки
func StripLeadingNoise(s string) string {
	return strings.TrimLeft(s, leadingNoise)
}
