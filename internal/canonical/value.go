package canonical

// value.go implements the tagged value union and the parsers that turn messy
// source cells into typed values:
//
//   - multiple date formats, including 2-digit years with a pivot
//   - currency symbols, thousands separators, accounting parentheses
//   - assorted boolean spellings (yes/no, t/f, 1/0)
//
// Parsers never coerce: a cell that fails its field's parse stays a plain
// string value so downstream stages can count it as missing rather than
// treating it as zero.

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags the runtime type of a Value.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueString
	ValueNumber
	ValueDate
	ValueBool
)

// DateLayout is the canonical wire format for date values.
const DateLayout = "2006-01-02"

// Value is one cell of a canonical row: exactly one of the typed members is
// meaningful, selected by Kind.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Time time.Time
	Bool bool
}

// Null returns the null value.
func Null() Value { return Value{Kind: ValueNull} }

// String returns a string value; empty input is null.
func String(s string) Value {
	if s == "" {
		return Null()
	}
	return Value{Kind: ValueString, Str: s}
}

// Number returns a numeric value.
func Number(f float64) Value { return Value{Kind: ValueNumber, Num: f} }

// Date returns a date value truncated to the day.
func Date(t time.Time) Value {
	return Value{Kind: ValueDate, Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: ValueBool, Bool: b} }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.Kind == ValueNull }

// Render returns the string form used for display and staging.
func (v Value) Render() string {
	switch v.Kind {
	case ValueString:
		return v.Str
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case ValueDate:
		return v.Time.Format(DateLayout)
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// MarshalJSON encodes the value as its natural JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueString:
		return json.Marshal(v.Str)
	case ValueNumber:
		return json.Marshal(v.Num)
	case ValueDate:
		return json.Marshal(v.Time.Format(DateLayout))
	case ValueBool:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON scalar, recovering dates from the canonical
// layout.
func (v *Value) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*v = Null()
		return nil
	}
	if s == "true" || s == "false" {
		*v = Bool(s == "true")
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		if t, err := time.Parse(DateLayout, str); err == nil {
			*v = Date(t)
			return nil
		}
		*v = String(str)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("unsupported value literal %s", s)
	}
	*v = Number(f)
	return nil
}

// Parse converts a raw source cell into a typed value for the given field.
// A non-empty cell that fails its field's parse is kept as a string value;
// the caller decides whether that counts as missing data.
func Parse(f Field, raw string) Value {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Null()
	}

	switch KindOf(f) {
	case KindDate:
		if t, ok := ParseDate(raw); ok {
			return Date(t)
		}
	case KindNumber:
		if n, ok := ParseAmount(raw); ok {
			return Number(n)
		}
	case KindBool:
		if b, ok := ParseBool(raw); ok {
			return Bool(b)
		}
	}
	return String(raw)
}

// numericPattern validates a cleaned-up amount string.
var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// TwoDigitYearPivot controls 2-digit year interpretation: parsed years more
// than this many years in the future roll back a century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// ParseDate parses a date cell, trying unambiguous 4-digit-year layouts
// before 2-digit-year layouts with the pivot adjustment.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivot := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivot {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// ParseAmount parses a monetary cell. Currency symbols and thousands
// separators are stripped; accounting parentheses produce a negative value.
// Aggregations that want magnitudes apply Magnitude afterwards.
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // euro
	s = strings.ReplaceAll(s, "£", "") // pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if negative {
		s = "-" + s
	}

	if !numericPattern.MatchString(s) {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Magnitude returns the absolute value of an amount.
func Magnitude(f float64) float64 { return math.Abs(f) }

// ParseBool parses the usual boolean spellings.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// CleanCell removes common CSV artifacts from a cell value: surrounding
// whitespace, Excel formula prefixes (="..."), and stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}
