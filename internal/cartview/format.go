package cartview

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	domain "github.com/dmu-smartstyle/storefront/internal/domain"
)

// Formatter renders money amounts with locale-aware grouping. Amounts keep up to two
// fraction digits and drop trailing zeros, so 1899.50 renders as "1,899.5".
type Formatter struct {
	printer *message.Printer
	symbol  string
	suffix  string
}

// NewFormatter builds a Formatter for locale. Unknown locales fall back to en-US.
func NewFormatter(locale, symbol, suffix string) Formatter {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.AmericanEnglish
	}
	return Formatter{
		printer: message.NewPrinter(tag),
		symbol:  symbol,
		suffix:  suffix,
	}
}

// DefaultFormatter formats US dollars per year.
func DefaultFormatter() Formatter {
	return NewFormatter("en-US", "$", "/year")
}

// Valid reports whether f was built by NewFormatter.
func (f Formatter) Valid() bool {
	return f.printer != nil
}

// Amount formats a major-unit amount without symbol.
func (f Formatter) Amount(v float64) string {
	return f.printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

// Money formats m with the currency symbol, e.g. "$2,999.8".
func (f Formatter) Money(m domain.Money) string {
	if m < 0 {
		return "-" + f.symbol + f.Amount(-m.Major())
	}
	return f.symbol + f.Amount(m.Major())
}

// UnitPrice formats a catalog price with the symbol and the recurring suffix, e.g.
// "$2,499/year".
func (f Formatter) UnitPrice(price float64) string {
	return f.Money(domain.MoneyFromMajor(price)) + f.suffix
}

// Rate formats basis points as a percentage, e.g. 2000 as "20%".
func (f Formatter) Rate(basisPoints int) string {
	return f.Amount(float64(basisPoints)/100) + "%"
}
