// format.go renders raw snapshot values into display strings for audit views. Every
// function here is total: malformed input degrades to a raw coercion, never an error.
package audit

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	// noValuePlaceholder is shown for nil/absent field values.
	noValuePlaceholder = "no value"

	// displayTimeLayout is the canonical date-time display for timestamps.
	displayTimeLayout = "Jan 2, 2006 3:04 PM"
	// displayDateLayout is used for date-only values.
	displayDateLayout = "Jan 2, 2006"
)

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

	// numberPrinter renders grouped decimal numbers ("1,234.5").
	numberPrinter = message.NewPrinter(language.English)
)

// FormatValue renders a raw snapshot value into its canonical display string.
//
//	nil                      → "no value"
//	bool                     → "Yes" / "No"
//	email-like string        → unchanged
//	ISO-date-prefixed string → canonical date-time display
//	number                   → grouped decimal string
//	map / slice              → canonical JSON (stable key order), display only
//	anything else            → string coercion
//
// The function is total over all input types and never panics.
func FormatValue(v interface{}) string {
	if v == nil {
		return noValuePlaceholder
	}

	switch val := v.(type) {
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case string:
		return formatString(val)
	case time.Time:
		return val.Format(displayTimeLayout)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return formatNumber(f)
		}
		return val.String()
	}

	if f, ok := toFloat64(v); ok {
		return formatNumber(f)
	}

	// Objects and arrays: canonical serialised form for display purposes only.
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
	}

	return fmt.Sprint(v)
}

// formatString handles the string-specific display rules: email addresses pass
// through unchanged, date-like strings are reformatted, everything else is
// returned as-is.
func formatString(s string) string {
	if s == "" {
		return noValuePlaceholder
	}
	if emailPattern.MatchString(s) {
		return s
	}
	if isoDatePattern.MatchString(s) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Format(displayTimeLayout)
		}
		if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
			return t.Format(displayTimeLayout)
		}
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t.Format(displayDateLayout)
		}
	}
	return s
}

// formatNumber renders a float with digit grouping. Integral values drop the
// decimal part entirely so quantities read naturally ("1,234" not "1,234.0").
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return numberPrinter.Sprint(number.Decimal(int64(f)))
	}
	return numberPrinter.Sprint(number.Decimal(f))
}
