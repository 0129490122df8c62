package utils

import (
	"fmt"
	"strings"
)

var onesWords = [...]string{
	"Zero", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine",
	"Ten", "Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen", "Sixteen",
	"Seventeen", "Eighteen", "Nineteen",
}

var tensWords = [...]string{
	"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety",
}

var scaleWords = []struct {
	value int64
	word  string
}{
	{1_000_000_000, "Billion"},
	{1_000_000, "Million"},
	{1_000, "Thousand"},
	{100, "Hundred"},
}

// ToWords renders a whole amount in English long form,
// e.g. 2341 -> "Two Thousand Three Hundred Forty One".
// Billions are the largest scale, so amounts past 999 Billion repeat the
// group ("1000 Billion" is "One Thousand Billion").
func ToWords(n int64) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("amount in words for %d: %w", n, ErrorInvalidInput)
	}
	if n == 0 {
		return onesWords[0], nil
	}
	return strings.Join(wordsFor(n, nil), " "), nil
}

func wordsFor(n int64, out []string) []string {
	for _, s := range scaleWords {
		if n >= s.value {
			out = wordsFor(n/s.value, out)
			out = append(out, s.word)
			if rem := n % s.value; rem > 0 {
				out = wordsFor(rem, out)
			}
			return out
		}
	}
	if n >= 20 {
		out = append(out, tensWords[n/10])
		if n%10 > 0 {
			out = append(out, onesWords[n%10])
		}
		return out
	}
	return append(out, onesWords[n])
}
