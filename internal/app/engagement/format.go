package engagement

import (
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter renders points and money for people.
type Formatter struct {
	printer *message.Printer
	unit    currency.Unit
}

// NewFormatter creates a formatter for an ISO 4217 currency code.
// An unknown code falls back to USD.
func NewFormatter(tag language.Tag, currencyCode string) *Formatter {
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		unit = currency.USD
	}
	return &Formatter{printer: message.NewPrinter(tag), unit: unit}
}

// DefaultFormatter formats in English with US dollars.
func DefaultFormatter() *Formatter {
	return NewFormatter(language.English, "USD")
}

// Points renders a point count with digit grouping, e.g. "1,500 points".
func (f *Formatter) Points(n int64) string {
	if n == 1 {
		return f.printer.Sprintf("%d point", n)
	}
	return f.printer.Sprintf("%d points", n)
}

// Money renders a whole-unit amount with the currency symbol, e.g. "$ 1,234".
func (f *Formatter) Money(amount int64) string {
	return f.printer.Sprintf("%v %d", currency.Symbol(f.unit), amount)
}

// Currency returns the configured currency code.
func (f *Formatter) Currency() string {
	return f.unit.String()
}
