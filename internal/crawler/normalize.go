package crawler

import (
	"regexp"
	"strconv"
	"strings"
)

var digitRun = regexp.MustCompile(`[0-9]+`)

// NormalizePrice concatenates every ASCII digit run in raw, in order, and parses the result.
// "44,650円" -> 44650, "274,500円(税込)" -> 274500, "無料" -> false.
// Strings carrying two prices concatenate into one large value; PriceCeiling rejects most of those.
func NormalizePrice(raw string) (int64, bool) {
	runs := digitRun.FindAllString(raw, -1)
	if len(runs) == 0 {
		return 0, false
	}

	price, err := strconv.ParseInt(strings.Join(runs, ""), 10, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

// CleanText collapses whitespace runs and trims the result
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
