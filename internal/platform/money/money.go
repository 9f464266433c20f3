// Package money renders minor-unit amounts as localised display strings for
// API responses. Amounts stay int64 minor units everywhere else.
package money

import (
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var supportedTags = []language.Tag{
	language.TraditionalChinese,
	language.English,
	language.Japanese,
}

var matcher = language.NewMatcher(supportedTags)

// Formatter renders amounts for one negotiated display language.
type Formatter struct {
	tag language.Tag
}

// ForLanguage builds a formatter for an explicit BCP 47 tag, falling back to
// the first supported language when the tag does not parse.
func ForLanguage(tag string) Formatter {
	parsed, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return Formatter{tag: supportedTags[0]}
	}
	matched, _, _ := matcher.Match(parsed)
	return Formatter{tag: matched}
}

// ForAcceptLanguage negotiates a formatter from an Accept-Language header.
func ForAcceptLanguage(header string) Formatter {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return Formatter{tag: supportedTags[0]}
	}
	matched, _, _ := matcher.Match(tags...)
	return Formatter{tag: matched}
}

// Tag reports the negotiated language.
func (f Formatter) Tag() language.Tag {
	if f.tag == (language.Tag{}) {
		return supportedTags[0]
	}
	return f.tag
}

// Format renders a minor-unit amount in the given ISO 4217 currency, e.g.
// "TWD 150" for zero-decimal currencies or "USD 1.50" for two-decimal ones.
func (f Formatter) Format(code string, amount int64) string {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		unit = currency.TWD
	}

	printer := message.NewPrinter(f.Tag())

	scale, _ := currency.Cash.Rounding(unit)
	if scale <= 0 {
		return printer.Sprintf("%v %v", unit, number.Decimal(amount))
	}
	major := float64(amount) / math.Pow10(scale)
	return printer.Sprintf("%v %v", unit, number.Decimal(major, number.Scale(scale)))
}
