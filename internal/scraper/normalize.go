package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const maxTitleLength = 50

var (
	priceRe          = regexp.MustCompile(`(\d+\.?\d*)`)
	currencyReplacer = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", "₹", "", ",", "")
)

// NormalizePrice strips currency symbols and thousands separators and parses
// the first number in text. It reports false when text holds no number.
func NormalizePrice(text string) (float64, bool) {
	cleaned := strings.TrimSpace(currencyReplacer.Replace(text))

	match := priceRe.FindString(cleaned)
	if match == "" {
		return 0, false
	}

	price, err := strconv.ParseFloat(strings.TrimSuffix(match, "."), 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

// TruncateTitle trims title and cuts it to 50 characters plus "..." when longer.
func TruncateTitle(title string) string {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) <= maxTitleLength {
		return title
	}
	return string([]rune(title)[:maxTitleLength]) + "..."
}
