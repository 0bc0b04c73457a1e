// Package format renders market values the way the dashboard displays them.
package format

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Missing is rendered for values that did not parse.
const Missing = "N/A"

var printer = message.NewPrinter(language.AmericanEnglish)

func invalid(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Price uses thousands separators and two decimals from 1 upwards, four
// decimals down to 0.01 and eight below that.
func Price(v float64) string {
	switch {
	case invalid(v):
		return Missing
	case v >= 1:
		return "$" + printer.Sprintf("%.2f", v)
	case v >= 0.01:
		return fmt.Sprintf("$%.4f", v)
	default:
		return fmt.Sprintf("$%.8f", v)
	}
}

// Volume abbreviates to billions, millions or thousands.
func Volume(v float64) string {
	switch {
	case invalid(v):
		return Missing
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	default:
		return fmt.Sprintf("$%.2fK", v/1e3)
	}
}

// Change renders a signed percentage, e.g. "+1.25%".
func Change(v float64) string {
	if invalid(v) {
		return Missing
	}
	if v >= 0 {
		return fmt.Sprintf("+%.2f%%", v)
	}
	return fmt.Sprintf("%.2f%%", v)
}

func Amount(v float64) string {
	if invalid(v) {
		return Missing
	}
	return fmt.Sprintf("%.4f", v)
}

func Total(v float64) string {
	if invalid(v) {
		return Missing
	}
	return fmt.Sprintf("%.2f", v)
}

// SpreadPercent keeps four decimals; spreads are usually tiny.
func SpreadPercent(v float64) string {
	if invalid(v) {
		return Missing
	}
	return fmt.Sprintf("%.4f%%", v)
}
