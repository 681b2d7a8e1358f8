package scrape

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/0x0shephard/h200/pkg/config"
)

// Default price patterns per currency. Each has a single capture group for
// the numeric part; thousands separators are stripped before parsing.
var currencyPatterns = map[string]string{
	"USD": `\$\s*([0-9][0-9,]*\.?[0-9]*)`,
	"EUR": `€\s*([0-9][0-9,]*\.?[0-9]*)`,
	"INR": `₹\s*([0-9][0-9,]*\.?[0-9]*)`,
	"THB": `฿\s*([0-9][0-9,]*\.?[0-9]*)`,
}

// keywordWindow is how much of the surrounding text is searched for a price
// once a keyword occurrence is found. Pricing tables put the number close to
// the GPU model name; a page-wide scan would match unrelated line items.
const keywordWindow = 400

// pricePattern returns the compiled extraction regex for a provider: the
// configured override if present, otherwise the currency default.
func pricePattern(cfg config.ProviderConfig) (*regexp.Regexp, error) {
	pattern := cfg.PricePattern
	if pattern == "" {
		var ok bool
		pattern, ok = currencyPatterns[strings.ToUpper(cfg.Currency)]
		if !ok {
			pattern = currencyPatterns["USD"]
		}
	}
	return regexp.Compile("(?i)" + pattern)
}

// extractPrice scans the text around each keyword occurrence and returns the
// first numeric match inside the provider's raw plausibility window.
//
// Pages often carry several candidate numbers per section (an H100 price two
// rows up, a monthly figure next to the hourly one); the window plus the raw
// bounds check is what keeps the wrong line item out.
func extractPrice(text string, cfg config.ProviderConfig) (decimal.Decimal, bool) {
	re, err := pricePattern(cfg)
	if err != nil {
		return decimal.Zero, false
	}

	for _, window := range keywordWindows(text, cfg.Keyword) {
		matches := re.FindAllStringSubmatch(window, -1)
		for _, m := range matches {
			if len(m) < 2 {
				continue
			}
			raw := strings.ReplaceAll(m[1], ",", "")
			v, err := decimal.NewFromString(raw)
			if err != nil {
				continue
			}
			f, _ := v.Float64()
			if cfg.RawBounds.Contains(f) {
				return v, true
			}
		}
	}

	return decimal.Zero, false
}

// keywordWindows returns text slices around each occurrence of keyword,
// in document order. An empty keyword yields the whole text.
func keywordWindows(text, keyword string) []string {
	if keyword == "" {
		return []string{text}
	}

	var windows []string
	lower := strings.ToLower(text)
	needle := strings.ToLower(keyword)

	for offset := 0; ; {
		idx := strings.Index(lower[offset:], needle)
		if idx < 0 {
			break
		}
		idx += offset

		start := idx - keywordWindow
		if start < 0 {
			start = 0
		}
		end := idx + len(needle) + keywordWindow
		if end > len(text) {
			end = len(text)
		}
		windows = append(windows, text[start:end])

		offset = idx + len(needle)
	}

	return windows
}

// stripTags removes HTML markup, leaving the visible text. It is a plain
// tag stripper, not a DOM parser: pricing pages are scanned as flat text the
// same way on both the static and rendered paths.
var (
	tagRe    = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>`)
	markupRe = regexp.MustCompile(`<[^>]*>`)
	spaceRe  = regexp.MustCompile(`[ \t]+`)
)

func stripTags(html string) string {
	text := tagRe.ReplaceAllString(html, " ")
	text = markupRe.ReplaceAllString(text, " ")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&#36;", "$").Replace(text)
	return spaceRe.ReplaceAllString(text, " ")
}
