package affix

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity нормированная по длине похожесть строк в диапазоне [0, 1]
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
